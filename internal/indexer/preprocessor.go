package indexer

import (
	"strings"
	"unicode"
)

// Preprocess trims text and collapses runs of whitespace into single spaces.
func Preprocess(text string) string {
	var b strings.Builder
	wasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteByte(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
