package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a display name for case- and accent-insensitive
// matching: compatibility decomposition, combining marks stripped,
// lowercased, then recomposed. The transform chain is built per call since
// transformers are not safe for concurrent use.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	chain := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(unicode.ToLower),
		norm.NFKC,
	)

	result, _, err := transform.String(chain, s)
	if err != nil || result == "" {
		return strings.ToLower(s)
	}

	return result
}
