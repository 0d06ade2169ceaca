package config

import "time"

// WebConfig holds runtime configuration for the web frontend.
type WebConfig struct {
	Environment     string
	Addr            string
	APIBaseURL      string
	CookieName      string
	ThemeCookieName string
	CookieSecure    bool
	DisplayTimezone string
	RequestTimeout  time.Duration
	MaxImageBytes   int64
	LogLevel        string
}

// LoadWebConfig constructs a WebConfig from environment variables.
func LoadWebConfig() WebConfig {
	return WebConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("WEB_ADDR", ":3000"),
		APIBaseURL:      GetString("API_BASE_URL", "http://localhost:4000"),
		CookieName:      GetString("SESSION_COOKIE_NAME", "technews_session"),
		ThemeCookieName: GetString("THEME_COOKIE_NAME", "technews_theme"),
		CookieSecure:    GetBool("COOKIE_SECURE", false),
		DisplayTimezone: GetString("DISPLAY_TIMEZONE", "Asia/Tehran"),
		RequestTimeout:  GetDuration("WEB_REQUEST_TIMEOUT_SECONDS", time.Second, 10*time.Second),
		MaxImageBytes:   GetInt64("MAX_IMAGE_BYTES", 5_000_000),
		LogLevel:        GetString("LOG_LEVEL", "info"),
	}
}
