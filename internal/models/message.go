package models

import (
	"strings"
	"time"
)

// OptimisticID is the server id sentinel assigned to a message that has been
// created locally but not yet confirmed by the server.
const OptimisticID int64 = -1

// LocalStatus is the transient, client-only delivery state of a message.
// It is never sent to or received from the server.
type LocalStatus string

const (
	StatusSending LocalStatus = "sending"
	StatusSent    LocalStatus = "sent"
	StatusFailed  LocalStatus = "failed"
)

// MediaKind classifies an attachment for rendering purposes.
type MediaKind string

const (
	MediaText  MediaKind = "text"
	MediaImage MediaKind = "image"
	MediaGIF   MediaKind = "gif"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	MediaFile  MediaKind = "file"
)

// MediaKindFromMime maps a mime type to a MediaKind, defaulting to a generic
// file when the mime is unknown.
func MediaKindFromMime(mime string) MediaKind {
	switch {
	case mime == "image/gif":
		return MediaGIF
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	default:
		return MediaFile
	}
}

// Attachment describes a single media item attached to a message.
type Attachment struct {
	URL  string    `json:"url" validate:"required"`
	Mime string    `json:"mime,omitempty"`
	Kind MediaKind `json:"type,omitempty"`
	Name string    `json:"name,omitempty"`
	Size int64     `json:"size,omitempty"`
}

// ReplyPreview is a lightweight embedded view of the message being replied
// to. Its content follows the same lazy-decrypt rule as the parent message.
type ReplyPreview struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"senderId,omitempty"`
	Content          string    `json:"content,omitempty"`
	EncryptedContent string    `json:"encryptedContent,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitzero"`
}

// Message is the normalized internal representation of a chat message. A
// message is identified by its server id once confirmed, and by its
// ClientMessageID before that; the client id is retained after confirmation
// as a stable cross-reference.
type Message struct {
	ID               int64           `json:"id"`
	ClientMessageID  string          `json:"clientMessageId,omitempty"`
	ConversationID   int64           `json:"conversationId"`
	SenderID         int64           `json:"senderId"`
	Content          string          `json:"content,omitempty"`
	EncryptedContent string          `json:"encryptedContent,omitempty"`
	Attachments      []Attachment    `json:"attachments,omitempty"`
	RepliedToID      int64           `json:"repliedToId,omitempty"`
	RepliedTo        *ReplyPreview   `json:"repliedTo,omitempty"`
	IsDelivered      bool            `json:"isDelivered"`
	IsRead           bool            `json:"isRead"`
	IsEphemeral      bool            `json:"isEphemeral,omitempty"`
	ExpiresAt        time.Time       `json:"expiresAt,omitzero"`
	LocalStatus      LocalStatus     `json:"-"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt,omitzero"`
	Reactions        []Reaction      `json:"reactions,omitempty"`
	ReactionGroups   []ReactionGroup `json:"reactionGroups,omitempty"`
}

// Confirmed reports whether the server has assigned an authoritative id.
func (m *Message) Confirmed() bool {
	return m.ID > 0
}

// Expired reports whether an ephemeral message has passed its expiry.
func (m *Message) Expired(now time.Time) bool {
	return m.IsEphemeral && !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now)
}

// SameIdentity reports whether other refers to the same logical message,
// matching by server id or by client id.
func (m *Message) SameIdentity(other *Message) bool {
	if other.ClientMessageID != "" && m.ClientMessageID == other.ClientMessageID {
		return true
	}
	return other.Confirmed() && m.ID == other.ID
}

// MessageRef addresses a stored message by server id or, for unconfirmed
// entries, by client id. Exactly one of the two should be set.
type MessageRef struct {
	ID       int64
	ClientID string
}

// ByID addresses a message by its server-assigned id.
func ByID(id int64) MessageRef { return MessageRef{ID: id} }

// ByClientID addresses a message by its client-assigned id.
func ByClientID(clientID string) MessageRef { return MessageRef{ClientID: clientID} }

// Matches reports whether the ref addresses m.
func (r MessageRef) Matches(m *Message) bool {
	if r.ClientID != "" && m.ClientMessageID == r.ClientID {
		return true
	}
	return r.ID > 0 && m.ID == r.ID
}

// StatusPatch is a targeted update of delivery, read and local-status flags.
// Nil fields are left untouched; content fields are never affected.
type StatusPatch struct {
	IsDelivered *bool
	IsRead      *bool
	LocalStatus *LocalStatus
}

// MessagePatch is a generic partial update of content fields, located by
// server id or client id.
type MessagePatch struct {
	ID               int64
	ClientID         string
	ConversationID   int64 // optional; resolved by scanning when zero
	Content          *string
	EncryptedContent *string
	UpdatedAt        *time.Time
}

// Ref returns the message reference the patch addresses.
func (p MessagePatch) Ref() MessageRef {
	if p.ID > 0 {
		return ByID(p.ID)
	}
	return ByClientID(p.ClientID)
}
