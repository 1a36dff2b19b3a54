package presence

import (
	"context"
	"log"
	"sync"
	"time"
)

// Beater is the subset of the presence backend the heartbeat needs.
type Beater interface {
	Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error
	Leave(ctx context.Context, sessionID, operator string) error
}

// Config holds heartbeat timing. TTL should comfortably exceed the
// interval so a single missed beat does not drop the operator from the
// roster.
type Config struct {
	Interval time.Duration
	TTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		TTL:      90 * time.Second,
	}
}

// Heartbeat announces one operator's presence in one session at a fixed
// interval. It is advisory only; it carries no mutual-exclusion
// guarantee and a failed beat is logged, not fatal.
type Heartbeat struct {
	backend   Beater
	config    Config
	sessionID string
	operator  string

	mu        sync.Mutex
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
}

func NewHeartbeat(backend Beater, config Config, sessionID, operator string) *Heartbeat {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.TTL == 0 {
		config.TTL = 3 * config.Interval
	}

	return &Heartbeat{
		backend:   backend,
		config:    config,
		sessionID: sessionID,
		operator:  operator,
		stopCh:    make(chan struct{}),
	}
}

// Start begins beating. The first beat is sent immediately so the
// operator shows on the roster without waiting a full interval.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.ticker = time.NewTicker(h.config.Interval)
	h.mu.Unlock()

	log.Printf("[Presence] Heartbeat started for %s in session %s - Interval: %v",
		h.operator, h.sessionID, h.config.Interval)

	h.beat()
	go h.run()
}

// Stop ends the heartbeat and attempts a final leave so the operator
// drops off the roster promptly. The leave is best effort; if it fails
// the TTL expires the entry anyway.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		if h.ticker != nil {
			h.ticker.Stop()
		}
		h.isRunning = false
		h.mu.Unlock()

		close(h.stopCh)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.backend.Leave(ctx, h.sessionID, h.operator); err != nil {
			log.Printf("[Presence] Final leave failed for %s: %v", h.operator, err)
		}

		log.Printf("[Presence] Heartbeat stopped for %s in session %s", h.operator, h.sessionID)
	})
}

func (h *Heartbeat) run() {
	for {
		select {
		case <-h.ticker.C:
			h.beat()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Heartbeat) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.backend.Heartbeat(ctx, h.sessionID, h.operator, h.config.TTL); err != nil {
		log.Printf("[Presence] Heartbeat failed for %s: %v", h.operator, err)
	}
}
