package models

// Direction selects which side of the cursor a history page covers.
type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

// HistoryRequest is a cursor-paginated request against the history endpoint.
type HistoryRequest struct {
	ConversationID int64
	CursorID       int64 // zero means "from the latest"
	Direction      Direction
	Limit          int
}

// HistoryPage is one page of messages plus the cursor for the next page.
// NextCursor is zero when the conversation is exhausted in that direction.
type HistoryPage struct {
	Messages   []InboundMessage `json:"messages"`
	NextCursor int64            `json:"nextCursor,omitempty"`
}
