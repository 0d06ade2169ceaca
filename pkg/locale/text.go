package locale

import (
	"strconv"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var persianDigits = runes.Map(func(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return '۰' + (r - '0')
	case r >= '٠' && r <= '٩':
		return '۰' + (r - '٠')
	default:
		return r
	}
})

var persianLetters = runes.Map(func(r rune) rune {
	switch r {
	case 'ي', 'ى':
		return 'ی'
	case 'ك':
		return 'ک'
	case '٠', '١', '٢', '٣', '٤', '٥', '٦', '٧', '٨', '٩':
		return '۰' + (r - '٠')
	default:
		return r
	}
})

// Digits replaces Latin and Arabic-Indic digits with Persian digits.
func Digits(s string) string {
	out, _, err := transform.String(persianDigits, s)
	if err != nil {
		return s
	}
	return out
}

// Number formats n with Persian digits.
func Number(n int) string {
	return Digits(strconv.Itoa(n))
}

// Normalize prepares user text for storage: NFC composition, Arabic yeh/kaf
// replaced with their Persian forms, surrounding whitespace trimmed.
func Normalize(s string) string {
	out, _, err := transform.String(transform.Chain(norm.NFC, persianLetters), s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}
