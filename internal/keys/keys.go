package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// maxInline bounds the joined member list embedded directly in a key.
// Longer sets collapse to a digest so keys stay index-friendly.
const maxInline = 128

// Canonical builds the cache key for a request kind and its set-shaped
// parameters. Members are sorted and deduplicated before joining, so any
// permutation (or duplication) of the same set yields the identical key.
// Pure function; invalid input simply produces a key that misses on lookup.
func Canonical(kind string, members []string) string {
	if len(members) == 0 {
		return kind + ":"
	}

	s := make([]string, len(members))
	copy(s, members)
	sort.Strings(s)

	// dedupe in place (s is sorted)
	n := 1
	for i := 1; i < len(s); i++ {
		if s[i] != s[n-1] {
			s[n] = s[i]
			n++
		}
	}
	s = s[:n]

	joined := strings.Join(s, ",")
	if len(joined) <= maxInline {
		return kind + ":" + joined
	}
	sum := sha256.Sum256([]byte(joined))
	return kind + ":" + hex.EncodeToString(sum[:8])
}
