package pattern

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, drops digits and punctuation and collapses
// whitespace. "AWS EMEA #4411" and "aws emea 9921" normalize identically.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}

	return b.String()
}
