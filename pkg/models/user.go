package models

// User is the minimal identity record the storage layer knows about.
// Email doubles as the stable identity used to derive per-user index keys
// (always through keys.Escape, never raw).
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}
