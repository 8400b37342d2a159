package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Session: config.Session{UserID: 7},
		Send: config.SendConfig{
			SocketAckWait: 30 * time.Millisecond,
			Timeout:       120 * time.Millisecond,
			ChunkSize:     10,
			Workers:       4,
		},
		Typing: config.TypingConfig{
			TTL:       4 * time.Second,
			StopAfter: 25 * time.Millisecond,
		},
		Ephemeral: config.EphemeralConfig{
			SweepInterval: 10 * time.Millisecond,
		},
	}
}

type typingCall struct {
	conversationID int64
	active         bool
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []models.OutgoingMessage
	acks      []func(models.InboundMessage)
	typing    []typingCall
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) SendMessage(_ context.Context, msg models.OutgoingMessage, ack func(models.InboundMessage)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	f.acks = append(f.acks, ack)
	return nil
}

func (f *fakeTransport) SendTyping(_ context.Context, conversationID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.typing = append(f.typing, typingCall{conversationID, active})
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastSent() (models.OutgoingMessage, func(models.InboundMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	return f.sent[n-1], f.acks[n-1]
}

func (f *fakeTransport) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typing...)
}

type reactCall struct {
	messageID int64
	emoji     string
}

type editCall struct {
	conversationID int64
	messageID      int64
	clientID       string
	content        string
}

type fakeAPI struct {
	mu sync.Mutex

	sendFn   func(models.OutgoingMessage) (models.InboundMessage, error)
	uploadFn func([]FileUpload) ([]models.Attachment, error)
	fetchFn  func(models.HistoryRequest) (models.HistoryPage, error)
	// actionErr fails every non-send mutation endpoint when set.
	actionErr error

	sends     []models.OutgoingMessage
	uploads   [][]FileUpload
	reacts    []reactCall
	unreacts  []int64
	edits     []editCall
	deletes   []int64
	delivered []int64
	reads     []int64
}

func (f *fakeAPI) SendMessage(_ context.Context, msg models.OutgoingMessage) (models.InboundMessage, error) {
	f.mu.Lock()
	f.sends = append(f.sends, msg)
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return models.InboundMessage{}, fmt.Errorf("send not configured")
	}
	return fn(msg)
}

func (f *fakeAPI) UploadFiles(_ context.Context, files []FileUpload) ([]models.Attachment, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, files)
	fn := f.uploadFn
	f.mu.Unlock()
	if fn != nil {
		return fn(files)
	}
	out := make([]models.Attachment, len(files))
	for i, file := range files {
		out[i] = models.Attachment{
			URL:  "https://cdn.example.com/" + file.Name,
			Mime: file.Mime,
			Kind: models.MediaKindFromMime(file.Mime),
			Name: file.Name,
			Size: int64(len(file.Data)),
		}
	}
	return out, nil
}

func (f *fakeAPI) FetchMessages(_ context.Context, req models.HistoryRequest) (models.HistoryPage, error) {
	f.mu.Lock()
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return models.HistoryPage{}, fmt.Errorf("fetch not configured")
	}
	return fn(req)
}

func (f *fakeAPI) React(_ context.Context, messageID int64, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.reacts = append(f.reacts, reactCall{messageID, emoji})
	return nil
}

func (f *fakeAPI) RemoveReaction(_ context.Context, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.unreacts = append(f.unreacts, messageID)
	return nil
}

func (f *fakeAPI) UpdateMessage(_ context.Context, conversationID, messageID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.edits = append(f.edits, editCall{conversationID: conversationID, messageID: messageID, content: content})
	return nil
}

func (f *fakeAPI) UpdateMessageByClientID(_ context.Context, conversationID int64, clientID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.edits = append(f.edits, editCall{conversationID: conversationID, clientID: clientID, content: content})
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, conversationID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeAPI) MarkDelivered(_ context.Context, conversationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.delivered = append(f.delivered, conversationID)
	return nil
}

func (f *fakeAPI) MarkRead(_ context.Context, conversationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.reads = append(f.reads, conversationID)
	return nil
}

func (f *fakeAPI) sentPayloads() []models.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutgoingMessage(nil), f.sends...)
}

func (f *fakeAPI) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeAPI) readCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.reads...)
}

func (f *fakeAPI) deliveredCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.delivered...)
}

func (f *fakeAPI) editCalls() []editCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]editCall(nil), f.edits...)
}

func (f *fakeAPI) reactCalls() []reactCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reactCall(nil), f.reacts...)
}

func (f *fakeAPI) unreactCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.unreacts...)
}

// fakeCipher is a reversible prefix cipher so tests can assert the exact
// ciphertext and plaintext without real key material.
type fakeCipher struct {
	mu         sync.Mutex
	decrypts   int
	encryptErr error
	// broken lists ciphertexts whose decryption fails.
	broken map[string]bool
}

func (f *fakeCipher) Encrypt(plaintext string) (string, error) {
	if f.encryptErr != nil {
		return "", f.encryptErr
	}
	if plaintext == "" {
		return "", nil
	}
	return "enc:" + plaintext, nil
}

func (f *fakeCipher) Decrypt(ciphertext string) (string, error) {
	f.mu.Lock()
	f.decrypts++
	broken := f.broken[ciphertext]
	f.mu.Unlock()

	if broken {
		return "", fmt.Errorf("decrypt: message authentication failed")
	}
	if ciphertext == "" {
		return "", nil
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func (f *fakeCipher) decryptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decrypts
}
