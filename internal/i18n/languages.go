package i18n

import "strings"

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"uk": "Ukrainian",
}

// Resolve picks the first supported language code, falling back to fallback.
func Resolve(fallback string, candidates ...string) string {
	for _, code := range candidates {
		normalized := strings.ToLower(code)
		if _, ok := languageNames[normalized]; ok {
			return normalized
		}
	}
	return fallback
}
