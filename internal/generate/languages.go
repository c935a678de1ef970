package generate

import "sort"

// languageNames maps supported language codes to the names used in prompts.
var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"de": "German",
}

// SupportedLanguage reports whether a language code is accepted.
func SupportedLanguage(code string) bool {
	_, ok := languageNames[code]
	return ok
}

// LanguageName returns the prompt-facing name for a code, defaulting to
// English for anything unknown.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "English"
}

// SupportedCodes returns the accepted language codes, sorted.
func SupportedCodes() []string {
	codes := make([]string, 0, len(languageNames))
	for code := range languageNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
