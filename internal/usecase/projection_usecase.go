package usecase

import (
	"context"
	"fmt"
	"sync"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
	"github.com/nguyentranbao-ct/chat-client/pkg/crypto"
)

// DecryptPlaceholder replaces content that could not be decrypted. A bad
// ciphertext never blocks rendering of sibling messages.
const DecryptPlaceholder = "[unable to decrypt]"

// ProjectionUsecase derives display-ready messages from stored raw ones:
// content decrypted lazily, reply previews resolved, store state untouched.
type ProjectionUsecase interface {
	// Resolve returns the conversation's messages with content populated.
	Resolve(ctx context.Context, conversationID int64) []models.Message
}

type projectionUsecase struct {
	store  *store.MessageStore
	cipher crypto.Client

	mu     sync.Mutex
	cache  map[string]string
	active int64
}

func NewProjectionUsecase(msgStore *store.MessageStore, cipher crypto.Client) ProjectionUsecase {
	return &projectionUsecase{
		store:  msgStore,
		cipher: cipher,
		cache:  make(map[string]string),
	}
}

func (uc *projectionUsecase) Resolve(ctx context.Context, conversationID int64) []models.Message {
	uc.mu.Lock()
	// Dropping the whole cache on conversation switch bounds its size; keys
	// never leak across conversations.
	if conversationID != uc.active {
		uc.cache = make(map[string]string)
		uc.active = conversationID
	}
	uc.mu.Unlock()

	messages := uc.store.Conversation(conversationID)
	for i := range messages {
		msg := &messages[i]

		if msg.Content == "" && msg.EncryptedContent != "" {
			msg.Content = uc.decrypt(ctx, messageKey(msg), msg.EncryptedContent)
		}

		if reply := msg.RepliedTo; reply != nil && reply.Content == "" && reply.EncryptedContent != "" {
			resolved := *reply
			resolved.Content = uc.decrypt(ctx, replyKey(reply), reply.EncryptedContent)
			msg.RepliedTo = &resolved
		}
	}
	return messages
}

// decrypt returns the cached plaintext for key, invoking the cipher only on
// a miss. Failures are cached too, so one broken ciphertext cannot trigger
// repeated decrypt attempts on every render.
func (uc *projectionUsecase) decrypt(ctx context.Context, key, encrypted string) string {
	uc.mu.Lock()
	cached, ok := uc.cache[key]
	uc.mu.Unlock()
	if ok {
		return cached
	}

	content, err := uc.cipher.Decrypt(encrypted)
	if err != nil {
		log.Warnf(ctx, "decrypt message content: %v", err)
		content = DecryptPlaceholder
	}

	uc.mu.Lock()
	uc.cache[key] = content
	uc.mu.Unlock()
	return content
}

func messageKey(m *models.Message) string {
	return fmt.Sprintf("%d|%d|%s", m.ID, m.UpdatedAt.UnixNano(), crypto.Fingerprint(m.EncryptedContent))
}

func replyKey(r *models.ReplyPreview) string {
	return fmt.Sprintf("reply:%d|%d|%s", r.ID, r.UpdatedAt.UnixNano(), crypto.Fingerprint(r.EncryptedContent))
}
