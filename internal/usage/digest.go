package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns a bounded stand-in for input: a short SHA-256 prefix, plus
// up to prefixRunes runes of the trimmed input when prefixRunes > 0.
func Digest(input string, prefixRunes int) string {
	sum := sha256.Sum256([]byte(input))
	hash := hex.EncodeToString(sum[:])[:16]
	if prefixRunes <= 0 {
		return hash
	}

	runes := []rune(strings.TrimSpace(input))
	if len(runes) > prefixRunes {
		runes = runes[:prefixRunes]
	}
	return hash + ":" + string(runes)
}
