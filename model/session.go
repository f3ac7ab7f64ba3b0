package model

import (
	"encoding/json"
	"time"
)

// Session is one UI session bound to a user's container.
type Session struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// KVEntry is one per-user key/value record. Values are opaque JSON owned by
// the UI (editor layout, recent files, preferences).
type KVEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
