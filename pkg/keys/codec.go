// Package keys is the canonical codec for every dynamic key segment in the
// store: user emails, quote digests, ids. Escaping happens exactly once, at
// the point a segment is formed; values are never escaped.
package keys

import (
	"fmt"
	"strings"
)

// escapeChar introduces every substitution. It is itself escaped (",,"), so
// "a.b" and "a,b" can never collide after encoding.
const escapeChar = ','

// Substitutions for characters forbidden in a path segment: the segment
// separators used by the physical layouts (".", "/", ":"), the tree store's
// reserved characters ("$", "#", "[", "]"), the glob wildcard ("*"), and the
// composite-key field separator ("_" would be ambiguous inside zset members
// only; it stays legal here because composite keys escape members last).
var escapeTable = map[byte]string{
	',': ",,",
	'.': ",p",
	'/': ",s",
	':': ",c",
	'$': ",d",
	'#': ",h",
	'[': ",l",
	']': ",r",
	'*': ",w",
}

var unescapeTable = map[byte]byte{
	',': ',',
	'p': '.',
	's': '/',
	'c': ':',
	'd': '$',
	'h': '#',
	'l': '[',
	'r': ']',
	'w': '*',
}

// DecodeError reports a malformed substitution sequence in an escaped
// segment.
type DecodeError struct {
	Segment string
	Pos     int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed escape sequence in segment %q at position %d", e.Segment, e.Pos)
}

// Escape rewrites raw into a segment containing none of the reserved path
// characters and no control characters. The mapping is unambiguous and
// order-preserving for characters that are not replaced; Unescape inverts it
// exactly.
func Escape(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if sub, ok := escapeTable[c]; ok {
			b.WriteString(sub)
			continue
		}
		if c < 0x20 || c == 0x7f {
			fmt.Fprintf(&b, ",x%02x", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Unescape is the exact inverse of Escape. It fails with *DecodeError if the
// segment contains a truncated or unknown substitution sequence.
func Unescape(segment string) (string, error) {
	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c != escapeChar {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(segment) {
			return "", &DecodeError{Segment: segment, Pos: i}
		}
		i++
		code := segment[i]
		if code == 'x' {
			if i+2 >= len(segment) {
				return "", &DecodeError{Segment: segment, Pos: i - 1}
			}
			var v int
			if _, err := fmt.Sscanf(segment[i+1:i+3], "%02x", &v); err != nil {
				return "", &DecodeError{Segment: segment, Pos: i - 1}
			}
			b.WriteByte(byte(v))
			i += 2
			continue
		}
		orig, ok := unescapeTable[code]
		if !ok {
			return "", &DecodeError{Segment: segment, Pos: i - 1}
		}
		b.WriteByte(orig)
	}
	return b.String(), nil
}
