// Package judgment turns free-form provider text into structured safety and
// triage results, falling back to a cautious keyword scan when the text is
// not the JSON the prompt asked for.
package judgment

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
)

// maxHeuristicReasoning bounds the raw text copied into a heuristic result.
const maxHeuristicReasoning = 500

// jsonObject returns the outermost {...} span of text, skipping any code
// fence or prose around it.
func jsonObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// termSet is a case-insensitive multi-pattern matcher.
type termSet struct {
	matcher  *ahocorasick.Matcher
	patterns [][]byte
}

func newTermSet(terms ...string) termSet {
	patterns := make([][]byte, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, []byte(strings.ToLower(t)))
	}
	return termSet{matcher: ahocorasick.NewMatcher(patterns), patterns: patterns}
}

func (s termSet) in(lower []byte) bool {
	return len(s.matcher.MatchThreadSafe(lower)) > 0
}

// blank returns a copy of lower with every occurrence of the set's terms
// overwritten by spaces, so offsets of the remaining text are unchanged.
// The second result reports whether anything was blanked.
func (s termSet) blank(lower []byte) ([]byte, bool) {
	hits := s.matcher.MatchThreadSafe(lower)
	if len(hits) == 0 {
		return lower, false
	}
	out := bytes.Clone(lower)
	for _, i := range hits {
		p := s.patterns[i]
		for from := 0; ; {
			at := bytes.Index(out[from:], p)
			if at < 0 {
				break
			}
			copy(out[from+at:], bytes.Repeat([]byte{' '}, len(p)))
			from += at + len(p)
		}
	}
	return out, true
}

func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
