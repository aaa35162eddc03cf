package store

import (
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	Sex          string    `json:"sex"`
	Orientation  string    `json:"orientation"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

type ChatWindow struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one prompt/response exchange. The response is written exactly once,
// when the turn is finalized; turns are never updated after insertion.
type Turn struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Metadata  *string   `json:"metadata,omitempty"` // free-form side-channel data
	CreatedAt time.Time `json:"created_at"`
}
