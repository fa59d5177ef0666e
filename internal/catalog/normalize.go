package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeText folds a title or query into its comparable form: diacritics
// stripped, lowercased, every non-alphanumeric run collapsed to a single
// space, and trimmed.
func normalizeText(raw string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}
	stripped = strings.ToLower(stripped)
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// isMn reports whether r is a Unicode non-spacing mark (combining accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// tokenize splits normalized text into tokens.
func tokenize(raw string) []string {
	normalized := normalizeText(raw)
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}

// QueryKey is the normalized form of a query used for in-flight markers.
// Identical user queries that differ only in case, punctuation or accents
// coordinate on the same key.
func QueryKey(raw string) string {
	return normalizeText(raw)
}
