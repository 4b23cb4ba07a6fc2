// geochat/models/models.go
package models

import (
	"time"

	"geochat/config"
)

// --- Account Models ---

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	LoggedIn     bool      `json:"logged_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// --- Messaging Models ---

// StoredMessage is a message row as persisted. Only ciphertext is kept.
type StoredMessage struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	ThreadID   int64
	Ciphertext []byte
	Timestamp  time.Time
}

// Message is a message as seen by callers. When the row could not be
// decrypted, Body is empty and Err says why.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	ThreadID   int64     `json:"thread_id"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	Err        error     `json:"-"`
}

// Involves reports whether userID is the sender or receiver.
func (m Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// --- Comment Models ---

// NewComment carries the caller-supplied fields of a comment insert.
type NewComment struct {
	UserID      int64
	Topic       string
	Body        string
	Location    string
	IsPrivate   bool
	IsAnonymous bool
}

// StoredComment is a comment row as persisted. Body holds ciphertext when IsEncrypted is set.
type StoredComment struct {
	ID                int64
	UserID            int64
	Topic             string
	Body              []byte
	Location          string
	IsPrivate         bool
	IsEncrypted       bool
	IsAnonymous       bool
	AnonymousUsername *string
	Username          string
	PostedAt          time.Time
}

type Comment struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Topic             string    `json:"topic"`
	Body              string    `json:"body"`
	Location          string    `json:"location"`
	IsPrivate         bool      `json:"is_private"`
	IsEncrypted       bool      `json:"is_encrypted"`
	IsAnonymous       bool      `json:"is_anonymous"`
	AnonymousUsername *string   `json:"anonymous_username,omitempty"`
	Username          string    `json:"username"`
	Timestamp         string    `json:"timestamp"`
	PostedAt          time.Time `json:"posted_at"`
	Err               error     `json:"-"`
}

// DisplayName is the name a comment is shown under.
func (c Comment) DisplayName() string {
	if c.IsAnonymous {
		return config.AnonymousUsername
	}
	return c.Username
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MappedComment is a visible comment whose location resolved to coordinates.
type MappedComment struct {
	Comment
	Coordinates
}
