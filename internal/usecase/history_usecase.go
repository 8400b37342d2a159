package usecase

import (
	"context"
	"fmt"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
)

// HistoryUsecase loads message history pages into the store. Pages may
// overlap previously loaded ranges; the store's merge-by-identity rule keeps
// every message single.
type HistoryUsecase interface {
	// LoadInitial replaces a conversation's list with its latest page and
	// returns the cursor for older history.
	LoadInitial(ctx context.Context, conversationID int64, limit int) (int64, error)
	// LoadOlder merges one page in the given direction and returns the
	// next cursor, zero when exhausted.
	LoadOlder(ctx context.Context, conversationID, cursorID int64, direction models.Direction, limit int) (int64, error)
}

type historyUsecase struct {
	store *store.MessageStore
	api   ChatAPI
}

func NewHistoryUsecase(msgStore *store.MessageStore, api ChatAPI) HistoryUsecase {
	return &historyUsecase{
		store: msgStore,
		api:   api,
	}
}

func (uc *historyUsecase) LoadInitial(ctx context.Context, conversationID int64, limit int) (int64, error) {
	page, err := uc.api.FetchMessages(ctx, models.HistoryRequest{
		ConversationID: conversationID,
		Direction:      models.DirectionOlder,
		Limit:          limit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch messages: %w", err)
	}

	messages, err := models.NormalizeList(page.Messages)
	if err != nil {
		log.Warnf(ctx, "history page for conversation %d had invalid entries: %v", conversationID, err)
	}
	uc.store.SetConversationMessages(conversationID, messages)
	uc.markDelivered(ctx, conversationID)
	return page.NextCursor, nil
}

func (uc *historyUsecase) LoadOlder(ctx context.Context, conversationID, cursorID int64, direction models.Direction, limit int) (int64, error) {
	page, err := uc.api.FetchMessages(ctx, models.HistoryRequest{
		ConversationID: conversationID,
		CursorID:       cursorID,
		Direction:      direction,
		Limit:          limit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch messages: %w", err)
	}

	messages, err := models.NormalizeList(page.Messages)
	if err != nil {
		log.Warnf(ctx, "history page for conversation %d had invalid entries: %v", conversationID, err)
	}
	uc.store.LoadOlderHistory(conversationID, messages, direction)
	return page.NextCursor, nil
}

// markDelivered tells the server the local user received the conversation's
// messages. Fire and forget; delivery marking is best effort.
func (uc *historyUsecase) markDelivered(ctx context.Context, conversationID int64) {
	go func() {
		if err := uc.api.MarkDelivered(context.WithoutCancel(ctx), conversationID); err != nil {
			log.Warnf(ctx, "mark conversation %d delivered: %v", conversationID, err)
		}
	}()
}
