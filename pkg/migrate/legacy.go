package migrate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// Legacy (schema v2) records are scalar values holding base64-wrapped,
// LZMA-compressed JSON. Field names drifted across old writers, so both
// spellings are accepted on read; identity is never defaulted.

type legacyPost struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Text      string `json:"text"` // older writer used "text" for posts too
	Author    string `json:"author"`
	AuthorID  string `json:"authorId"`
	Timestamp int64  `json:"timestamp"`
	CreatedAt int64  `json:"createdAt"`
}

type legacyReply struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	ParentID   string          `json:"parentId"`
	RootPostID string          `json:"rootPostId"`
	Author     string          `json:"author"`
	AuthorID   string          `json:"authorId"`
	Timestamp  int64           `json:"timestamp"`
	CreatedAt  int64           `json:"createdAt"`
	Quote      json.RawMessage `json:"quote"`
}

// DecodeLegacyBlob unwraps base64 and decompresses the LZMA stream.
func DecodeLegacyBlob(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("legacy blob base64: %w", err)
	}
	r, err := lzma.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("legacy blob lzma: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("legacy blob decompress: %w", err)
	}
	return out, nil
}

// EncodeLegacyBlob is the inverse of DecodeLegacyBlob. Kept for seed
// tooling and tests; the server never writes the legacy layout.
func EncodeLegacyBlob(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *legacyPost) content() string {
	if p.Content != "" {
		return p.Content
	}
	return p.Text
}

func (p *legacyPost) author() string {
	if p.AuthorID != "" {
		return p.AuthorID
	}
	return p.Author
}

func (p *legacyPost) createdAt() int64 {
	if p.CreatedAt != 0 {
		return p.CreatedAt
	}
	return p.Timestamp
}

func (r *legacyReply) author() string {
	if r.AuthorID != "" {
		return r.AuthorID
	}
	return r.Author
}

func (r *legacyReply) createdAt() int64 {
	if r.CreatedAt != 0 {
		return r.CreatedAt
	}
	return r.Timestamp
}
