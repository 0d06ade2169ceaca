package web

import "net/http"

// Theme is the dark-mode preference.
type Theme interface {
	Dark(r *http.Request) bool
	Toggle(w http.ResponseWriter, r *http.Request) bool
}

type cookieTheme struct {
	name   string
	secure bool
}

func (t cookieTheme) Dark(r *http.Request) bool {
	cookie, err := r.Cookie(t.name)
	return err == nil && cookie.Value == "dark"
}

// Toggle flips the preference and returns the new value.
func (t cookieTheme) Toggle(w http.ResponseWriter, r *http.Request) bool {
	dark := !t.Dark(r)
	value := "light"
	if dark {
		value = "dark"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    value,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return dark
}
