package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// LikeToRegex translates a SQL LIKE pattern into an anchored regular
// expression: % matches any sequence of characters, _ exactly one, and
// every other character matches itself.
func LikeToRegex(pattern string) string {
	var buf strings.Builder
	buf.WriteString("(?s)^")

	for i := 0; i < len(pattern); {
		c, size := utf8.DecodeRuneInString(pattern[i:])
		if c == utf8.RuneError && size <= 1 {
			i++
			continue // skip invalid bytes
		}
		switch c {
		case '%':
			buf.WriteString(".*")
		case '_':
			buf.WriteString(".")
		default:
			buf.WriteString(regexp.QuoteMeta(string(c)))
		}
		i += size
	}

	buf.WriteString("$")
	return buf.String()
}
