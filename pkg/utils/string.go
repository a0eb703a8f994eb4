package utils

import (
	"regexp"
	"strings"
)

// multipleSpaces matches any sequence of whitespace, including newlines.
var multipleSpaces = regexp.MustCompile(`\s+`)

// CompressAllWhitespace replaces every whitespace run (including newlines)
// with a single space and trims the ends. Punishment reasons are stored in
// this form so history output stays single-line.
func CompressAllWhitespace(s string) string {
	return strings.TrimSpace(multipleSpaces.ReplaceAllString(s, " "))
}
