package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a websocket endpoint driven by handle and returns its ws url.
func startServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newConnected(t *testing.T, url string, h Handlers) *Client {
	t.Helper()
	c := NewClient(&config.Config{Socket: config.SocketConfig{
		URL:              url,
		HandshakeTimeout: time.Second,
	}})
	c.SetHandlers(h)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

// ackingServer confirms every message:send carrying an ack id.
func ackingServer(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != EventSend || env.AckID == 0 {
			continue
		}
		var out models.OutgoingMessage
		if err := json.Unmarshal(env.Data, &out); err != nil {
			continue
		}
		data, _ := json.Marshal(models.InboundMessage{
			ID:              42,
			ClientMessageID: out.ClientMessageID,
			ConversationID:  out.ConversationID,
			SenderID:        7,
			CreatedAt:       time.Now(),
		})
		_ = conn.WriteJSON(envelope{Event: eventEmitAck, AckID: env.AckID, Data: data})
	}
}

func TestSendMessageReceivesAck(t *testing.T) {
	url := startServer(t, ackingServer)
	c := newConnected(t, url, Handlers{})
	require.True(t, c.Connected())

	acked := make(chan models.InboundMessage, 1)
	err := c.SendMessage(context.Background(), models.OutgoingMessage{
		ConversationID:  1,
		ClientMessageID: "optimistic-abc",
	}, func(in models.InboundMessage) {
		acked <- in
	})
	require.NoError(t, err)

	select {
	case in := <-acked:
		assert.EqualValues(t, 42, in.ID)
		assert.Equal(t, "optimistic-abc", in.ClientMessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("no ack received")
	}
}

func TestBroadcastReachesMessageHandler(t *testing.T) {
	push := make(chan envelope, 1)
	url := startServer(t, func(conn *websocket.Conn) {
		for env := range push {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	})

	received := make(chan models.InboundMessage, 1)
	newConnected(t, url, Handlers{
		OnMessage: func(in models.InboundMessage) { received <- in },
	})

	data, _ := json.Marshal(models.InboundMessage{
		ID:             7,
		ConversationID: 1,
		SenderID:       9,
		Content:        "hello everyone",
		CreatedAt:      time.Now(),
	})
	push <- envelope{Event: EventNew, Data: data}

	select {
	case in := <-received:
		assert.EqualValues(t, 7, in.ID)
		assert.Equal(t, "hello everyone", in.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not dispatched")
	}
}

func TestDirectAckEventReachesMessageHandler(t *testing.T) {
	push := make(chan envelope, 1)
	url := startServer(t, func(conn *websocket.Conn) {
		for env := range push {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	})

	received := make(chan models.InboundMessage, 1)
	newConnected(t, url, Handlers{
		OnMessage: func(in models.InboundMessage) { received <- in },
	})

	data, _ := json.Marshal(models.InboundMessage{
		ID:              8,
		ClientMessageID: "optimistic-xyz",
		ConversationID:  1,
		SenderID:        7,
		CreatedAt:       time.Now(),
	})
	push <- envelope{Event: EventAck, Data: data}

	select {
	case in := <-received:
		assert.Equal(t, "optimistic-xyz", in.ClientMessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("ack event not dispatched")
	}
}

func TestTypingRoundTrip(t *testing.T) {
	fromClient := make(chan envelope, 2)
	push := make(chan envelope, 1)
	url := startServer(t, func(conn *websocket.Conn) {
		go func() {
			for env := range push {
				if err := conn.WriteJSON(env); err != nil {
					return
				}
			}
		}()
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			fromClient <- env
		}
	})

	typed := make(chan bool, 1)
	c := newConnected(t, url, Handlers{
		OnTyping: func(ev models.TypingEvent, active bool) {
			assert.EqualValues(t, 9, ev.UserID)
			typed <- active
		},
	})

	require.NoError(t, c.SendTyping(context.Background(), 1, true))
	require.NoError(t, c.SendTyping(context.Background(), 1, false))

	for _, want := range []string{EventTypingStart, EventTypingStop} {
		select {
		case env := <-fromClient:
			assert.Equal(t, want, env.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("server did not receive %s", want)
		}
	}

	data, _ := json.Marshal(models.TypingEvent{ConversationID: 1, UserID: 9, Username: "eve"})
	push <- envelope{Event: EventTypingStart, Data: data}

	select {
	case active := <-typed:
		assert.True(t, active)
	case <-time.After(2 * time.Second):
		t.Fatal("typing event not dispatched")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	push := make(chan envelope, 2)
	url := startServer(t, func(conn *websocket.Conn) {
		for env := range push {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	})

	received := make(chan models.InboundMessage, 1)
	newConnected(t, url, Handlers{
		OnMessage: func(in models.InboundMessage) { received <- in },
	})

	push <- envelope{Event: "presence:update", Data: json.RawMessage(`{"userId":3}`)}
	data, _ := json.Marshal(models.InboundMessage{ID: 7, ConversationID: 1, SenderID: 9, CreatedAt: time.Now()})
	push <- envelope{Event: EventNew, Data: data}

	// The unknown event is skipped and the stream keeps flowing.
	select {
	case in := <-received:
		assert.EqualValues(t, 7, in.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stalled after unknown event")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient(&config.Config{Socket: config.SocketConfig{URL: "ws://127.0.0.1:1"}})

	err := c.SendMessage(context.Background(), models.OutgoingMessage{ConversationID: 1}, nil)
	require.Error(t, err)
	assert.False(t, c.Connected())
}

func TestCloseStopsConnection(t *testing.T) {
	url := startServer(t, ackingServer)
	c := newConnected(t, url, Handlers{})
	require.True(t, c.Connected())

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())

	err := c.SendMessage(context.Background(), models.OutgoingMessage{ConversationID: 1}, nil)
	assert.Error(t, err)
}
