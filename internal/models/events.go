package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// OutgoingMessage is the logical send payload, accepted identically by the
// realtime transport and the REST send endpoint.
type OutgoingMessage struct {
	ConversationID   int64        `json:"conversationId" validate:"required,gt=0"`
	ClientMessageID  string       `json:"clientMessageId" validate:"required"`
	EncryptedContent string       `json:"encryptedContent,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	RepliedToID      int64        `json:"repliedToId,omitempty"`
}

// InboundMessage is the loosely-typed message shape arriving from the
// transport or REST collaborators. It is never used inside the core
// directly; every ingestion boundary converts it through Normalize first.
type InboundMessage struct {
	ID               int64         `json:"id" validate:"required,gt=0"`
	ClientMessageID  string        `json:"clientMessageId,omitempty"`
	ConversationID   int64         `json:"conversationId" validate:"required,gt=0"`
	SenderID         int64         `json:"senderId" validate:"required,gt=0"`
	Content          string        `json:"content,omitempty"`
	EncryptedContent string        `json:"encryptedContent,omitempty"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	RepliedToID      int64         `json:"repliedToId,omitempty"`
	RepliedTo        *ReplyPreview `json:"repliedTo,omitempty"`
	IsDelivered      bool          `json:"isDelivered"`
	IsRead           bool          `json:"isRead"`
	IsEphemeral      bool          `json:"isEphemeral,omitempty"`
	ExpiresAt        time.Time     `json:"expiresAt,omitzero"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt,omitzero"`
	Reactions        []Reaction    `json:"reactions,omitempty"`
}

// Normalize validates the inbound payload and converts it into the internal
// Message representation. Missing creation timestamps default to now, and
// attachment kinds are derived from the mime type when the server omits
// them. The grouped reaction summary is derived from the raw list so both
// representations start out consistent.
func (in InboundMessage) Normalize() (Message, error) {
	if err := validate.Struct(in); err != nil {
		return Message{}, fmt.Errorf("validate inbound message: %w", err)
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	attachments := make([]Attachment, len(in.Attachments))
	for i, a := range in.Attachments {
		if a.Kind == "" {
			a.Kind = MediaKindFromMime(a.Mime)
		}
		attachments[i] = a
	}
	if len(attachments) == 0 {
		attachments = nil
	}

	msg := Message{
		ID:               in.ID,
		ClientMessageID:  in.ClientMessageID,
		ConversationID:   in.ConversationID,
		SenderID:         in.SenderID,
		Content:          in.Content,
		EncryptedContent: in.EncryptedContent,
		Attachments:      attachments,
		RepliedToID:      in.RepliedToID,
		RepliedTo:        in.RepliedTo,
		IsDelivered:      in.IsDelivered,
		IsRead:           in.IsRead,
		IsEphemeral:      in.IsEphemeral,
		ExpiresAt:        in.ExpiresAt,
		CreatedAt:        createdAt,
		UpdatedAt:        in.UpdatedAt,
		Reactions:        in.Reactions,
	}
	if len(in.Reactions) > 0 {
		msg.ReactionGroups = GroupReactions(in.Reactions)
	}
	return msg, nil
}

// NormalizeList converts a batch of inbound messages, dropping entries that
// fail validation. Late, malformed or partial payloads are the steady state
// for this layer, so a bad entry never fails the whole batch.
func NormalizeList(in []InboundMessage) ([]Message, error) {
	out := make([]Message, 0, len(in))
	var firstErr error
	for _, raw := range in {
		msg, err := raw.Normalize()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, msg)
	}
	return out, firstErr
}
