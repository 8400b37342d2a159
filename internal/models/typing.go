package models

import "time"

// TypingEntry records that a user was typing in a conversation, with display
// name hints for rendering. Entries expire by TTL rather than relying on an
// explicit stop event alone.
type TypingEntry struct {
	UserID      int64     `json:"userId"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	LastAt      time.Time `json:"lastAt"`
}

// Name returns the best available display name for the entry.
func (e TypingEntry) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Username
}

// TypingEvent is the wire payload of a typing:start / typing:stop event.
type TypingEvent struct {
	ConversationID int64  `json:"conversationId" validate:"required,gt=0"`
	UserID         int64  `json:"userId" validate:"required,gt=0"`
	Username       string `json:"username,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
}
