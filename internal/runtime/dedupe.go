// internal/runtime/dedupe.go
package runtime

import "strings"

// DedupeConfig holds the near-duplicate heuristic thresholds. The exact
// values are tunable, not load-bearing; the defaults match observed bot
// behavior where the model re-sends a cosmetic rewording of a message it
// already posted.
type DedupeConfig struct {
	PrefixLen   int
	LengthRatio float64
	MinOverlap  int
}

// DefaultDedupeConfig returns the stock thresholds: identical 20-char
// prefix, or length ratio above 0.8 with at least 30 characters of common
// prefix.
func DefaultDedupeConfig() DedupeConfig {
	return DedupeConfig{PrefixLen: 20, LengthRatio: 0.8, MinOverlap: 30}
}

// NearDuplicate reports whether candidate is close enough to an
// already-sent message that posting it again would read as a duplicate.
func (c DedupeConfig) NearDuplicate(sent, candidate string) bool {
	a := strings.TrimSpace(sent)
	b := strings.TrimSpace(candidate)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	if len(a) >= c.PrefixLen && len(b) >= c.PrefixLen && a[:c.PrefixLen] == b[:c.PrefixLen] {
		return true
	}

	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if float64(shorter)/float64(longer) > c.LengthRatio && commonPrefixLen(a, b) >= c.MinOverlap {
		return true
	}
	return false
}

// AnyNearDuplicate checks candidate against every message sent this turn.
func (c DedupeConfig) AnyNearDuplicate(sent []string, candidate string) bool {
	for _, s := range sent {
		if c.NearDuplicate(s, candidate) {
			return true
		}
	}
	return false
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
