package usecase

import (
	"context"
	"sync"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
)

// EphemeralUsecase purges ephemeral messages once their expiry passes. An
// explicit delete event may remove them earlier; the sweep is the backstop
// that guarantees they disappear even without one.
type EphemeralUsecase interface {
	// Start launches the periodic sweep. Idempotent while running.
	Start()
	// Stop halts the periodic sweep.
	Stop()
	// SweepNow removes currently expired messages and returns the count.
	SweepNow(ctx context.Context) int
}

type ephemeralUsecase struct {
	store    *store.MessageStore
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
	now  func() time.Time
}

func NewEphemeralUsecase(msgStore *store.MessageStore, conf *config.Config) EphemeralUsecase {
	return &ephemeralUsecase{
		store:    msgStore,
		interval: conf.Ephemeral.SweepInterval,
		now:      time.Now,
	}
}

func (uc *ephemeralUsecase) Start() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.done != nil {
		return
	}
	uc.done = make(chan struct{})
	go uc.loop(uc.done)
}

func (uc *ephemeralUsecase) Stop() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.done != nil {
		close(uc.done)
		uc.done = nil
	}
}

func (uc *ephemeralUsecase) loop(done chan struct{}) {
	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			uc.SweepNow(context.Background())
		}
	}
}

func (uc *ephemeralUsecase) SweepNow(ctx context.Context) int {
	removed := uc.store.RemoveExpired(uc.now())
	if removed > 0 {
		log.Debugw(ctx, "purged expired ephemeral messages", "count", removed)
	}
	return removed
}
