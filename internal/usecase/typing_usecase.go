package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
)

// TypingUsecase tracks who is typing per conversation. The local side emits
// typing:start/typing:stop over the transport with an inactivity timer; the
// remote side records events with a TTL so stale entries disappear even when
// the stop event is lost.
type TypingUsecase interface {
	// Start signals local typing. Idempotent while already active; each
	// call re-arms the inactivity stop timer.
	Start(ctx context.Context, conversationID int64)
	// Stop signals the local user stopped typing.
	Stop(ctx context.Context, conversationID int64)
	// HandleEvent records a remote typing event.
	HandleEvent(ev models.TypingEvent, active bool)
	// List returns the non-expired typing entries, sorted by user id.
	List(conversationID int64) []models.TypingEntry
	// Label renders a deterministic "first N names, +K" indicator.
	Label(conversationID int64, maxNames int) string
}

type typingUsecase struct {
	transport RealtimeTransport
	conf      config.TypingConfig

	mu         sync.Mutex
	byConv     map[int64]map[int64]models.TypingEntry
	active     map[int64]bool
	stopTimers map[int64]*time.Timer
	now        func() time.Time
}

func NewTypingUsecase(transport RealtimeTransport, conf *config.Config) TypingUsecase {
	return &typingUsecase{
		transport:  transport,
		conf:       conf.Typing,
		byConv:     make(map[int64]map[int64]models.TypingEntry),
		active:     make(map[int64]bool),
		stopTimers: make(map[int64]*time.Timer),
		now:        time.Now,
	}
}

func (uc *typingUsecase) Start(ctx context.Context, conversationID int64) {
	uc.mu.Lock()
	wasActive := uc.active[conversationID]
	uc.active[conversationID] = true
	if t := uc.stopTimers[conversationID]; t != nil {
		t.Stop()
	}
	uc.stopTimers[conversationID] = time.AfterFunc(uc.conf.StopAfter, func() {
		uc.Stop(context.WithoutCancel(ctx), conversationID)
	})
	uc.mu.Unlock()

	if wasActive {
		return
	}
	if err := uc.transport.SendTyping(ctx, conversationID, true); err != nil {
		log.Warnf(ctx, "emit typing start: %v", err)
	}
}

func (uc *typingUsecase) Stop(ctx context.Context, conversationID int64) {
	uc.mu.Lock()
	wasActive := uc.active[conversationID]
	delete(uc.active, conversationID)
	if t := uc.stopTimers[conversationID]; t != nil {
		t.Stop()
		delete(uc.stopTimers, conversationID)
	}
	uc.mu.Unlock()

	if !wasActive {
		return
	}
	if err := uc.transport.SendTyping(ctx, conversationID, false); err != nil {
		log.Warnf(ctx, "emit typing stop: %v", err)
	}
}

func (uc *typingUsecase) HandleEvent(ev models.TypingEvent, active bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !active {
		if conv := uc.byConv[ev.ConversationID]; conv != nil {
			delete(conv, ev.UserID)
			if len(conv) == 0 {
				delete(uc.byConv, ev.ConversationID)
			}
		}
		return
	}

	conv := uc.byConv[ev.ConversationID]
	if conv == nil {
		conv = make(map[int64]models.TypingEntry)
		uc.byConv[ev.ConversationID] = conv
	}

	entry := models.TypingEntry{
		UserID:      ev.UserID,
		Username:    ev.Username,
		DisplayName: ev.DisplayName,
		LastAt:      uc.now(),
	}
	// A replayed or out-of-order event never rolls the timestamp back.
	if prev, ok := conv[ev.UserID]; ok && prev.LastAt.After(entry.LastAt) {
		entry.LastAt = prev.LastAt
	}
	conv[ev.UserID] = entry
}

func (uc *typingUsecase) List(conversationID int64) []models.TypingEntry {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.purgeLocked(conversationID)
	conv := uc.byConv[conversationID]
	entries := make([]models.TypingEntry, 0, len(conv))
	for _, e := range conv {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

func (uc *typingUsecase) Label(conversationID int64, maxNames int) string {
	entries := uc.List(conversationID)
	if len(entries) == 0 {
		return ""
	}

	names := make([]string, 0, min(maxNames, len(entries)))
	for _, e := range entries {
		if len(names) == maxNames {
			break
		}
		name := e.Name()
		if name == "" {
			name = fmt.Sprintf("user %d", e.UserID)
		}
		names = append(names, name)
	}

	label := strings.Join(names, ", ")
	if extra := len(entries) - len(names); extra > 0 {
		label = fmt.Sprintf("%s +%d", label, extra)
	}
	return label
}

// purgeLocked drops entries older than the TTL. Defensive: a lost stop
// event must not leave a user typing forever.
func (uc *typingUsecase) purgeLocked(conversationID int64) {
	conv := uc.byConv[conversationID]
	if conv == nil {
		return
	}
	cutoff := uc.now().Add(-uc.conf.TTL)
	for userID, e := range conv {
		if e.LastAt.Before(cutoff) {
			delete(conv, userID)
		}
	}
	if len(conv) == 0 {
		delete(uc.byConv, conversationID)
	}
}
