// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fallback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/mashchat/internal/event"
)

// ErrActive is returned by Reveal while a previous reveal is still running.
var ErrActive = errors.New("a fallback reveal is already active")

// Config holds responder settings.
type Config struct {
	// Rules in priority order. Nil uses DefaultRules.
	Rules []Rule

	// DefaultReply is used when no rule matches.
	DefaultReply string

	// Interval between reveal ticks. Zero reveals without pacing.
	Interval time.Duration

	// ChunkSize is the number of runes revealed per tick.
	ChunkSize int
}

// DefaultConfig returns the default responder configuration.
func DefaultConfig() Config {
	return Config{
		Rules:     DefaultRules(),
		Interval:  10 * time.Millisecond,
		ChunkSize: 1,
	}
}

// Responder reveals canned replies through an event.Sink.
type Responder struct {
	router    atomic.Pointer[Router]
	interval  time.Duration
	chunkSize int
	logger    *slog.Logger

	mu     sync.Mutex
	active *event.Handle
}

// NewResponder creates a responder.
func NewResponder(cfg Config, logger *slog.Logger) *Responder {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{
		interval:  cfg.Interval,
		chunkSize: cfg.ChunkSize,
		logger:    logger.With(slog.String("module", "fallback")),
	}
	r.router.Store(NewRouter(cfg.Rules, cfg.DefaultReply))
	return r
}

// Match returns the rule name and reply chosen for text.
func (r *Responder) Match(text string) (rule, reply string) {
	return r.router.Load().Route(text)
}

// SetRules replaces the rule set. A running reveal keeps its reply. Nil
// rules restore DefaultRules.
func (r *Responder) SetRules(rules []Rule, defaultReply string) {
	if rules == nil {
		rules = DefaultRules()
	}
	r.router.Store(NewRouter(rules, defaultReply))
	r.logger.Info("fallback rules replaced", slog.Int("rules", len(rules)))
}

// Reveal selects the reply for userText and delivers it to sink as message
// id, chunk by chunk. Cancelling the handle stops the reveal and completes
// the message with what was revealed so far.
func (r *Responder) Reveal(ctx context.Context, id, userText string, sink event.Sink) (*event.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		select {
		case <-r.active.Done():
		default:
			return nil, ErrActive
		}
	}

	rule, reply := r.router.Load().Route(userText)
	r.logger.Debug("fallback reply selected",
		slog.String("message_id", id),
		slog.String("rule", rule))

	h, hctx := event.NewHandle(ctx)
	r.active = h
	go r.reveal(hctx, h, id, reply, sink)
	return h, nil
}

func (r *Responder) reveal(ctx context.Context, h *event.Handle, id, reply string, sink event.Sink) {
	defer h.Finish()

	limit := rate.Inf
	if r.interval > 0 {
		limit = rate.Every(r.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, chunk := range Chunks(reply, r.chunkSize) {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if h.Cancelled() {
			break
		}
		sink.OnChunk(id, chunk)
	}
	r.release(h)
	sink.OnComplete(id)
}

// release frees the active slot ahead of the terminal callback.
func (r *Responder) release(h *event.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == h {
		r.active = nil
	}
}

// Chunks splits s into pieces of at most n runes.
func Chunks(s string, n int) []string {
	if n <= 0 {
		n = 1
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+n-1)/n)
	for i := 0; i < len(runes); i += n {
		end := min(i+n, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}
