// Package socket is the realtime transport collaborator: a websocket
// connection carrying send, acknowledgment, broadcast and typing events as
// JSON envelopes.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/gorilla/websocket"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/usecase"
)

// Ensure the client satisfies the transport contract.
var _ usecase.RealtimeTransport = (*Client)(nil)

// Wire event names. The server may confirm a send through EventAck (direct
// acknowledgment), EventNew (the broadcast every participant gets), or the
// per-emit ack envelope; the send coordinator treats them identically.
const (
	EventSend        = "message:send"
	EventAck         = "message:ack"
	EventNew         = "message:new"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	eventEmitAck     = "ack"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ackId,omitempty"`
}

// Handlers receive inbound events. OnMessage gets both direct
// acknowledgments and broadcasts.
type Handlers struct {
	OnMessage func(models.InboundMessage)
	OnTyping  func(models.TypingEvent, bool)
}

type Client struct {
	conf     config.SocketConfig
	handlers Handlers

	mu        sync.Mutex // guards conn writes and the ack registry
	conn      *websocket.Conn
	acks      map[int64]func(json.RawMessage)
	nextAckID atomic.Int64
	connected atomic.Bool
	done      chan struct{}
}

func NewClient(conf *config.Config) *Client {
	return &Client{
		conf: conf.Socket,
		acks: make(map[int64]func(json.RawMessage)),
	}
}

// SetHandlers must be called before Connect.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.conf.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.conf.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.conf.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readLoop(ctx, conn)
	return nil
}

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) SendMessage(ctx context.Context, msg models.OutgoingMessage, ack func(models.InboundMessage)) error {
	var onAck func(json.RawMessage)
	if ack != nil {
		onAck = func(raw json.RawMessage) {
			var in models.InboundMessage
			if err := json.Unmarshal(raw, &in); err != nil {
				log.Warnf(ctx, "decode emit ack: %v", err)
				return
			}
			ack(in)
		}
	}
	return c.emit(EventSend, msg, onAck)
}

func (c *Client) SendTyping(_ context.Context, conversationID int64, active bool) error {
	event := EventTypingStart
	if !active {
		event = EventTypingStop
	}
	return c.emit(event, map[string]int64{"conversationId": conversationID}, nil)
}

func (c *Client) emit(event string, data any, onAck func(json.RawMessage)) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := envelope{Event: event, Data: payload}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("socket not connected")
	}
	if onAck != nil {
		env.AckID = c.nextAckID.Add(1)
		c.acks[env.AckID] = onAck
	}
	if err := c.conn.WriteJSON(env); err != nil {
		delete(c.acks, env.AckID)
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.connected.Store(false)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-c.doneChan():
			default:
				log.Warnf(ctx, "socket read: %v", err)
			}
			return
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) doneChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Client) dispatch(ctx context.Context, env envelope) {
	switch env.Event {
	case eventEmitAck:
		c.mu.Lock()
		onAck := c.acks[env.AckID]
		delete(c.acks, env.AckID)
		c.mu.Unlock()
		if onAck != nil {
			onAck(env.Data)
		}

	case EventAck, EventNew:
		if c.handlers.OnMessage == nil {
			return
		}
		var in models.InboundMessage
		if err := json.Unmarshal(env.Data, &in); err != nil {
			log.Warnf(ctx, "decode %s event: %v", env.Event, err)
			return
		}
		c.handlers.OnMessage(in)

	case EventTypingStart, EventTypingStop:
		if c.handlers.OnTyping == nil {
			return
		}
		var ev models.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			log.Warnf(ctx, "decode %s event: %v", env.Event, err)
			return
		}
		c.handlers.OnTyping(ev, env.Event == EventTypingStart)

	default:
		log.Debugw(ctx, "ignoring unknown socket event", "event", env.Event)
	}
}
