package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"aphorist/pkg/models"
)

// ContentHash returns a deterministic, collision-resistant digest of
// arbitrary structured content. The value is canonicalized first (object
// keys sorted recursively), so two semantically identical inputs hash the
// same regardless of incidental field order.
func ContentHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("content hash marshal: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("content hash canonicalize: %w", err)
	}
	canon, err := canonicalJSON(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// QuoteKey is the single constructor for quote-counter hash fields. The
// digest covers the quoted text, its source id and the selection range, so
// the raw excerpt never becomes a path segment.
func QuoteKey(q models.Quote) string {
	// Quote marshaling cannot fail; struct has only strings and ints.
	h, _ := ContentHash(q)
	return h
}

// canonicalJSON renders a decoded JSON value with object keys in sorted
// order at every level.
func canonicalJSON(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(t))
		for k := range t {
			names = append(names, k)
		}
		sort.Strings(names)
		buf := []byte{'{'}
		for i, k := range names {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalJSON(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	case []interface{}:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := canonicalJSON(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		return append(buf, ']'), nil
	default:
		return json.Marshal(v)
	}
}
