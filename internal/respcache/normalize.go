package respcache

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Normalize maps equivalent deterministic inputs to one key: surrounding
// whitespace is trimmed, inner whitespace runs collapse to a single space,
// and the text is Unicode case-folded.
func Normalize(input string) string {
	return folder.String(strings.Join(strings.Fields(input), " "))
}
