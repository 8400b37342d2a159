package usecase

import (
	"context"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
	"github.com/nguyentranbao-ct/chat-client/pkg/util"
)

// MessageActionsUsecase covers the mutations a user applies to existing
// messages: edit, delete and reactions. Every action applies optimistically
// through the store first; the REST push either confirms it or rolls it
// back.
type MessageActionsUsecase interface {
	EditMessage(ctx context.Context, conversationID int64, ref models.MessageRef, content string) error
	DeleteMessage(ctx context.Context, conversationID, messageID int64) error
	ToggleReaction(ctx context.Context, conversationID, messageID int64, emoji string) error
}

type messageActionsUsecase struct {
	store  *store.MessageStore
	api    ChatAPI
	selfID int64
	now    func() time.Time
}

func NewMessageActionsUsecase(msgStore *store.MessageStore, api ChatAPI, conf *config.Config) MessageActionsUsecase {
	return &messageActionsUsecase{
		store:  msgStore,
		api:    api,
		selfID: conf.Session.UserID,
		now:    time.Now,
	}
}

// EditMessage routes by server id when the message is confirmed, and by
// client id when the edit races ahead of the send confirmation.
func (uc *messageActionsUsecase) EditMessage(ctx context.Context, conversationID int64, ref models.MessageRef, content string) error {
	prev, ok := uc.store.Find(conversationID, ref)
	if !ok {
		return fmt.Errorf("message not found in conversation %d", conversationID)
	}

	uc.store.UpdateMessage(models.MessagePatch{
		ID:             ref.ID,
		ClientID:       ref.ClientID,
		ConversationID: conversationID,
		Content:        util.Ptr(content),
		UpdatedAt:      util.Ptr(uc.now()),
	})

	var err error
	switch {
	case prev.Confirmed():
		err = uc.api.UpdateMessage(ctx, conversationID, prev.ID, content)
	case prev.ClientMessageID != "":
		err = uc.api.UpdateMessageByClientID(ctx, conversationID, prev.ClientMessageID, content)
	default:
		err = fmt.Errorf("message has neither server id nor client id")
	}
	if err != nil {
		uc.store.UpdateMessage(models.MessagePatch{
			ID:             ref.ID,
			ClientID:       ref.ClientID,
			ConversationID: conversationID,
			Content:        util.Ptr(prev.Content),
			UpdatedAt:      util.Ptr(prev.UpdatedAt),
		})
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// DeleteMessage removes the message locally, restoring it if the server
// rejects the delete.
func (uc *messageActionsUsecase) DeleteMessage(ctx context.Context, conversationID, messageID int64) error {
	backup, ok := uc.store.Find(conversationID, models.ByID(messageID))
	if !ok {
		return fmt.Errorf("message %d not found in conversation %d", messageID, conversationID)
	}

	uc.store.RemoveMessage(messageID)

	if err := uc.api.DeleteMessage(ctx, conversationID, messageID); err != nil {
		uc.store.AppendOrMerge(backup)
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ToggleReaction flips the local user's reaction and pushes it upstream
// fire-and-forget; the server echoes the authoritative reaction state back
// through the normal message update flow.
func (uc *messageActionsUsecase) ToggleReaction(ctx context.Context, conversationID, messageID int64, emoji string) error {
	if emoji == "" {
		return nil
	}

	active := uc.store.HasReaction(conversationID, messageID, emoji, uc.selfID)
	if !uc.store.ToggleReaction(conversationID, messageID, emoji, uc.selfID, nil) {
		return fmt.Errorf("message %d not found in conversation %d", messageID, conversationID)
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		var err error
		if active {
			err = uc.api.RemoveReaction(bg, messageID)
		} else {
			err = uc.api.React(bg, messageID, emoji)
		}
		if err != nil {
			log.Warnf(ctx, "push reaction for message %d: %v", messageID, err)
		}
	}()
	return nil
}
