package search

import "strings"

const maxQueryLength = 100

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SanitizeQuery trims the query and caps its length. The cap is applied on a
// rune boundary so multi-byte input isn't split.
func SanitizeQuery(input string) string {
	input = strings.TrimSpace(input)
	if r := []rune(input); len(r) > maxQueryLength {
		input = strings.TrimSpace(string(r[:maxQueryLength]))
	}
	return input
}

// EscapeLike escapes LIKE wildcards so user input only matches literally. The
// escape character is a backslash; queries must declare it with ESCAPE.
func EscapeLike(input string) string {
	return likeEscaper.Replace(input)
}
