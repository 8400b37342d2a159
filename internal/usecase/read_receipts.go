package usecase

import (
	"context"
	"sync"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
	"github.com/nguyentranbao-ct/chat-client/pkg/util"
)

// ReadReceiptUsecase turns viewport visibility signals into read marks: the
// first time a not-own, unread message becomes visible it is marked read
// locally and one read notification is sent upstream. Repeated visibility
// events are absorbed.
type ReadReceiptUsecase interface {
	ObserveVisible(ctx context.Context, conversationID, messageID int64)
}

// seen holds only the active conversation's message ids; switching
// conversations drops it wholesale, the same bounding rule the projection
// cache uses. Re-observing after a switch back is absorbed by the store's
// IsRead flag, so no duplicate notification is emitted.
type readReceiptUsecase struct {
	store  *store.MessageStore
	api    ChatAPI
	selfID int64

	mu     sync.Mutex
	seen   map[int64]struct{}
	active int64
}

func NewReadReceiptUsecase(msgStore *store.MessageStore, api ChatAPI, conf *config.Config) ReadReceiptUsecase {
	return &readReceiptUsecase{
		store:  msgStore,
		api:    api,
		selfID: conf.Session.UserID,
		seen:   make(map[int64]struct{}),
	}
}

func (uc *readReceiptUsecase) ObserveVisible(ctx context.Context, conversationID, messageID int64) {
	msg, ok := uc.store.Find(conversationID, models.ByID(messageID))
	if !ok || msg.SenderID == uc.selfID || msg.IsRead {
		return
	}

	uc.mu.Lock()
	if conversationID != uc.active {
		uc.seen = make(map[int64]struct{})
		uc.active = conversationID
	}
	if _, dup := uc.seen[messageID]; dup {
		uc.mu.Unlock()
		return
	}
	uc.seen[messageID] = struct{}{}
	uc.mu.Unlock()

	uc.store.MarkStatus(conversationID, models.ByID(messageID), models.StatusPatch{
		IsRead: util.Ptr(true),
	})

	go func() {
		if err := uc.api.MarkRead(context.WithoutCancel(ctx), conversationID); err != nil {
			log.Warnf(ctx, "mark conversation %d read: %v", conversationID, err)
		}
	}()
}
