package usecase

import (
	"context"

	"github.com/nguyentranbao-ct/chat-client/internal/models"
)

// RealtimeTransport is the websocket collaborator. Acknowledgments may
// arrive through the per-call ack callback, through a direct message:ack
// event, or through the generic broadcast; whichever fires first wins.
type RealtimeTransport interface {
	Connected() bool
	SendMessage(ctx context.Context, msg models.OutgoingMessage, ack func(models.InboundMessage)) error
	SendTyping(ctx context.Context, conversationID int64, active bool) error
}

// ChatAPI is the REST collaborator: the fallback send path plus the simple
// request/response endpoints the core fires after local updates.
type ChatAPI interface {
	SendMessage(ctx context.Context, msg models.OutgoingMessage) (models.InboundMessage, error)
	UploadFiles(ctx context.Context, files []FileUpload) ([]models.Attachment, error)
	FetchMessages(ctx context.Context, req models.HistoryRequest) (models.HistoryPage, error)
	React(ctx context.Context, messageID int64, emoji string) error
	RemoveReaction(ctx context.Context, messageID int64) error
	UpdateMessage(ctx context.Context, conversationID, messageID int64, content string) error
	UpdateMessageByClientID(ctx context.Context, conversationID int64, clientID, content string) error
	DeleteMessage(ctx context.Context, conversationID, messageID int64) error
	MarkDelivered(ctx context.Context, conversationID int64) error
	MarkRead(ctx context.Context, conversationID int64) error
}

// FileUpload is a local file selected for attachment, not yet uploaded.
type FileUpload struct {
	Name string
	Mime string
	Data []byte
}
