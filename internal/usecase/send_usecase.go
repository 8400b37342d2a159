package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
	"github.com/nguyentranbao-ct/chat-client/pkg/crypto"
	"github.com/nguyentranbao-ct/chat-client/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
)

// SendUsecase drives a logical send from user intent to a confirmed or
// failed terminal state. Each attachment chunk becomes its own message with
// its own client id; the socket and REST paths race per chunk, and the first
// confirmation wins exactly once.
type SendUsecase interface {
	// Send creates the optimistic entries and starts the transmission in
	// the background. It returns the client ids of the created chunks.
	Send(ctx context.Context, req SendRequest) ([]string, error)
	// HandleServerMessage is the funnel for every inbound server message:
	// direct acknowledgments, broadcasts to all participants, and messages
	// from other senders alike.
	HandleServerMessage(ctx context.Context, raw models.InboundMessage)
	// Close waits for in-flight sends to finish.
	Close()
}

type SendRequest struct {
	ConversationID int64
	Text           string
	Files          []FileUpload
	RepliedToID    int64
}

type sendUsecase struct {
	store     *store.MessageStore
	api       ChatAPI
	transport RealtimeTransport
	cipher    crypto.Client
	conf      config.SendConfig
	selfID    int64
	metrics   *prometheus.HistogramVec
	pool      *workerpool.WorkerPool

	mu       sync.Mutex
	pending  map[string]*pendingSend
	uploads  map[string][]models.Attachment
	previews map[string][]string
	now      func() time.Time
}

// pendingSend tracks one chunk's race to confirmation. settled is the
// single-assignment flag guarding the terminal transition; the overall fail
// timer marks the message failed without settling, so a late confirmation
// can still resolve it.
type pendingSend struct {
	clientID       string
	conversationID int64
	startedAt      time.Time

	mu        sync.Mutex
	settled   bool
	confirmed chan struct{}
	failTimer *time.Timer
}

func (p *pendingSend) isSettled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// trySettle flips the flag exactly once; the first caller wins.
func (p *pendingSend) trySettle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settled {
		return false
	}
	p.settled = true
	close(p.confirmed)
	if p.failTimer != nil {
		p.failTimer.Stop()
	}
	return true
}

func NewSendUsecase(
	msgStore *store.MessageStore,
	api ChatAPI,
	transport RealtimeTransport,
	cipher crypto.Client,
	conf *config.Config,
) (SendUsecase, error) {
	metrics, err := util.GetHistogramVec("chat_messages_sent", "status", "path")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}

	return &sendUsecase{
		store:     msgStore,
		api:       api,
		transport: transport,
		cipher:    cipher,
		conf:      conf.Send,
		selfID:    conf.Session.UserID,
		metrics:   metrics,
		pool:      workerpool.New(conf.Send.Workers),
		pending:   make(map[string]*pendingSend),
		uploads:   make(map[string][]models.Attachment),
		previews:  make(map[string][]string),
		now:       time.Now,
	}, nil
}

type sendChunk struct {
	index          int
	conversationID int64
	clientID       string
	text           string
	repliedToID    int64
	files          []FileUpload
}

func (uc *sendUsecase) Send(ctx context.Context, req SendRequest) ([]string, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Files) == 0 {
		return nil, nil
	}

	chunks := uc.chunkFiles(req.Files)
	clientIDs := make([]string, 0, len(chunks))
	// Closing the conversation view must not abort an in-flight send.
	bg := context.WithoutCancel(ctx)

	for i, files := range chunks {
		chunk := sendChunk{
			index:          i,
			conversationID: req.ConversationID,
			clientID:       "optimistic-" + uuid.NewString(),
			files:          files,
		}
		if i == 0 {
			chunk.text = req.Text
			chunk.repliedToID = req.RepliedToID
		}
		clientIDs = append(clientIDs, chunk.clientID)

		uc.insertOptimistic(chunk)
		p := uc.register(chunk)
		uc.pool.Submit(func() {
			uc.run(bg, chunk, p)
		})
	}
	return clientIDs, nil
}

// chunkFiles partitions attachments into transport-sized batches. A send
// with no files still produces one text-only chunk.
func (uc *sendUsecase) chunkFiles(files []FileUpload) [][]FileUpload {
	size := uc.conf.ChunkSize
	if size <= 0 {
		size = 1
	}
	if len(files) <= size {
		return [][]FileUpload{files}
	}
	var chunks [][]FileUpload
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		chunks = append(chunks, files[start:end])
	}
	return chunks
}

// insertOptimistic puts the pending message into the store with placeholder
// preview urls, so the UI reflects the send immediately.
func (uc *sendUsecase) insertOptimistic(chunk sendChunk) {
	now := uc.now()
	attachments := make([]models.Attachment, 0, len(chunk.files))
	urls := make([]string, 0, len(chunk.files))
	for _, f := range chunk.files {
		url := "local://" + uuid.NewString()
		urls = append(urls, url)
		attachments = append(attachments, models.Attachment{
			URL:  url,
			Mime: f.Mime,
			Kind: models.MediaKindFromMime(f.Mime),
			Name: f.Name,
			Size: int64(len(f.Data)),
		})
	}
	if len(attachments) == 0 {
		attachments = nil
	}

	uc.mu.Lock()
	uc.previews[chunk.clientID] = urls
	uc.mu.Unlock()

	uc.store.AppendOrMerge(models.Message{
		ID:              models.OptimisticID,
		ClientMessageID: chunk.clientID,
		ConversationID:  chunk.conversationID,
		SenderID:        uc.selfID,
		Content:         chunk.text,
		Attachments:     attachments,
		RepliedToID:     chunk.repliedToID,
		LocalStatus:     models.StatusSending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (uc *sendUsecase) register(chunk sendChunk) *pendingSend {
	p := &pendingSend{
		clientID:       chunk.clientID,
		conversationID: chunk.conversationID,
		startedAt:      uc.now(),
		confirmed:      make(chan struct{}),
	}
	uc.mu.Lock()
	uc.pending[chunk.clientID] = p
	uc.mu.Unlock()
	return p
}

func (uc *sendUsecase) pendingFor(clientID string) *pendingSend {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.pending[clientID]
}

// run executes one chunk's protocol: socket first when connected, REST as
// fallback, overall fail timer independent of both.
func (uc *sendUsecase) run(ctx context.Context, chunk sendChunk, p *pendingSend) {
	p.mu.Lock()
	p.failTimer = time.AfterFunc(uc.conf.Timeout, func() {
		uc.markFailed(ctx, p, "timeout")
	})
	p.mu.Unlock()

	encrypted, err := uc.cipher.Encrypt(chunk.text)
	if err != nil {
		log.Errorf(ctx, "encrypt content for %s: %v", chunk.clientID, err)
		uc.markFailed(ctx, p, "encrypt")
		p.trySettle()
		return
	}

	if uc.transport.Connected() {
		if uc.trySocket(ctx, chunk, p, encrypted) {
			return
		}
	}
	if p.isSettled() {
		return
	}

	// REST fallback. The upload cache guarantees the socket path's upload,
	// if it happened, is reused instead of re-pushing the same bytes.
	attachments, err := uc.uploadChunk(ctx, chunk)
	if err != nil {
		log.Errorf(ctx, "upload attachments for %s: %v", chunk.clientID, err)
		uc.markFailed(ctx, p, "upload")
		p.trySettle()
		return
	}

	out := uc.payload(chunk, encrypted, attachments)
	resp, err := uc.api.SendMessage(ctx, out)
	if err != nil {
		log.Errorf(ctx, "rest send for %s: %v", chunk.clientID, err)
		uc.markFailed(ctx, p, "rest")
		return
	}
	msg, err := resp.Normalize()
	if err != nil {
		log.Errorf(ctx, "normalize rest response for %s: %v", chunk.clientID, err)
		uc.markFailed(ctx, p, "rest")
		return
	}
	uc.finalize(ctx, p, msg, "rest")
}

// trySocket emits the chunk over the realtime transport and waits up to the
// ack window for a direct acknowledgment. It reports whether the chunk got
// settled on this path.
func (uc *sendUsecase) trySocket(ctx context.Context, chunk sendChunk, p *pendingSend, encrypted string) bool {
	attachments, err := uc.uploadChunk(ctx, chunk)
	if err != nil {
		log.Errorf(ctx, "upload attachments for %s: %v", chunk.clientID, err)
		uc.markFailed(ctx, p, "upload")
		p.trySettle()
		return true
	}

	out := uc.payload(chunk, encrypted, attachments)
	err = uc.transport.SendMessage(ctx, out, func(in models.InboundMessage) {
		uc.ingest(ctx, in, "socket")
	})
	if err != nil {
		log.Warnf(ctx, "socket send for %s: %v", chunk.clientID, err)
		return false
	}

	select {
	case <-p.confirmed:
		return true
	case <-time.After(uc.conf.SocketAckWait):
		return false
	}
}

func (uc *sendUsecase) payload(chunk sendChunk, encrypted string, attachments []models.Attachment) models.OutgoingMessage {
	return models.OutgoingMessage{
		ConversationID:   chunk.conversationID,
		ClientMessageID:  chunk.clientID,
		EncryptedContent: encrypted,
		Attachments:      attachments,
		RepliedToID:      chunk.repliedToID,
	}
}

func (uc *sendUsecase) HandleServerMessage(ctx context.Context, raw models.InboundMessage) {
	uc.ingest(ctx, raw, "broadcast")
}

// ingest normalizes an inbound server message and routes it: a match with a
// pending send confirms that send, anything else merges into the store.
func (uc *sendUsecase) ingest(ctx context.Context, raw models.InboundMessage, path string) {
	msg, err := raw.Normalize()
	if err != nil {
		log.Warnf(ctx, "drop malformed inbound message: %v", err)
		return
	}

	if msg.ClientMessageID != "" {
		if p := uc.pendingFor(msg.ClientMessageID); p != nil {
			uc.finalize(ctx, p, msg, path)
			return
		}
	}
	uc.store.AppendOrMerge(msg)
}

// finalize applies the single terminal success transition. Duplicate
// confirmations from the losing path degrade to a no-op here and a harmless
// merge in the store.
func (uc *sendUsecase) finalize(ctx context.Context, p *pendingSend, msg models.Message, path string) {
	if !p.trySettle() {
		uc.store.AppendOrMerge(msg)
		return
	}

	msg.LocalStatus = models.StatusSent
	uc.store.ReplaceOptimistic(p.clientID, msg)
	uc.releasePreviews(p.clientID)

	uc.mu.Lock()
	delete(uc.pending, p.clientID)
	for key := range uc.uploads {
		if strings.HasPrefix(key, p.clientID+"#") {
			delete(uc.uploads, key)
		}
	}
	uc.mu.Unlock()

	uc.metrics.WithLabelValues("sent", path).Observe(uc.now().Sub(p.startedAt).Seconds())
	log.Infof(ctx, "send %s confirmed via %s as message %d", p.clientID, path, msg.ID)
}

// markFailed flags the chunk failed without settling it, unless it already
// confirmed. The entry keeps its client id so a late confirmation can still
// replace it.
func (uc *sendUsecase) markFailed(ctx context.Context, p *pendingSend, reason string) {
	if p.isSettled() {
		return
	}
	status := models.StatusFailed
	uc.store.MarkStatus(p.conversationID, models.ByClientID(p.clientID), models.StatusPatch{
		LocalStatus: &status,
	})
	uc.releasePreviews(p.clientID)
	uc.metrics.WithLabelValues("failed", reason).Observe(uc.now().Sub(p.startedAt).Seconds())
	log.Warnf(ctx, "send %s marked failed (%s)", p.clientID, reason)
}

// uploadChunk uploads a chunk's files, reusing an already-uploaded result
// for the exact same chunk so the REST fallback never re-uploads bytes the
// socket path already pushed.
func (uc *sendUsecase) uploadChunk(ctx context.Context, chunk sendChunk) ([]models.Attachment, error) {
	if len(chunk.files) == 0 {
		return nil, nil
	}

	key := uploadKey(chunk.clientID, chunk.index)
	uc.mu.Lock()
	cached, ok := uc.uploads[key]
	uc.mu.Unlock()
	if ok {
		return cached, nil
	}

	uploaded, err := uc.api.UploadFiles(ctx, chunk.files)
	if err != nil {
		return nil, fmt.Errorf("upload files: %w", err)
	}
	for i := range uploaded {
		if uploaded[i].Kind == "" {
			uploaded[i].Kind = models.MediaKindFromMime(uploaded[i].Mime)
		}
	}

	uc.mu.Lock()
	uc.uploads[key] = uploaded
	uc.mu.Unlock()
	return uploaded, nil
}

func uploadKey(clientID string, index int) string {
	return fmt.Sprintf("%s#%d", clientID, index)
}

// releasePreviews drops the placeholder urls created for optimistic
// attachment previews. Idempotent; both the success and failure paths call
// it.
func (uc *sendUsecase) releasePreviews(clientID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.previews, clientID)
}

func (uc *sendUsecase) Close() {
	uc.pool.StopWait()
}
