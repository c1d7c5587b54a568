package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// ScoreWidth is the fixed width of a padded score. 20 digits covers the
// whole non-negative int64 range, so lexicographic order over padded scores
// equals numeric order for every timestamp this system produces.
const ScoreWidth = 20

// PadScore renders score as a fixed-width, zero-padded decimal string.
// Negative scores cannot be zero-padded meaningfully; they fall back to
// plain formatting, so their ordering degrades to lexicographic. That is a
// documented limitation (a clock far in the past), not an error.
func PadScore(score int64) string {
	if score < 0 {
		return strconv.FormatInt(score, 10)
	}
	return fmt.Sprintf("%0*d", ScoreWidth, score)
}

// CompositeKey builds the sorted-set member key `pad(score)_escape(member)`.
// The member is escaped last so the "_" separator position is fixed at
// ScoreWidth and the member can be recovered unambiguously.
func CompositeKey(score int64, member string) string {
	return PadScore(score) + "_" + Escape(member)
}

// SplitCompositeKey recovers (score, member) from a composite key.
func SplitCompositeKey(key string) (int64, string, error) {
	i := strings.Index(key, "_")
	if i < 0 {
		return 0, "", &DecodeError{Segment: key, Pos: 0}
	}
	score, err := strconv.ParseInt(key[:i], 10, 64)
	if err != nil {
		return 0, "", &DecodeError{Segment: key, Pos: 0}
	}
	member, err := Unescape(key[i+1:])
	if err != nil {
		return 0, "", err
	}
	return score, member, nil
}
