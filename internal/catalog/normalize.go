package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Ovál" -> "Oval").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel maps classifier and user labels onto catalog keys
// (no diacritics, surrounding space trimmed, title case).
func NormalizeLabel(label string) string {
	label = RemoveDiacritics(strings.TrimSpace(label))
	return cases.Title(language.Und).String(strings.ToLower(label))
}
