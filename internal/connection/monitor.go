// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connection

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// =============================================================================
// PROBER
// =============================================================================

// Prober performs one lightweight reachability check. Any error means the
// backend is unreachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to a Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// ErrForcedOffline is returned by Offline.
var ErrForcedOffline = errors.New("backend disabled by offline mode")

// Offline is a Prober that always fails, pinning the monitor to Disconnected.
var Offline Prober = ProberFunc(func(context.Context) error {
	return ErrForcedOffline
})

// =============================================================================
// CONFIG
// =============================================================================

// Config holds monitor settings.
type Config struct {
	// Interval between polls.
	Interval time.Duration

	// Timeout bounds a single probe.
	Timeout time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// =============================================================================
// MONITOR
// =============================================================================

// Monitor polls backend reachability and publishes state changes.
type Monitor struct {
	prober Prober
	config Config
	logger *slog.Logger

	// probeMu serializes probes so transitions are published in order.
	probeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners []func(State)

	pollMu  sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewMonitor creates a monitor in the Unknown state.
func NewMonitor(prober Prober, cfg Config, logger *slog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober: prober,
		config: cfg,
		logger: logger.With(slog.String("module", "connection")),
	}
}

// State returns the last published state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnChange registers fn to be called on every state transition.
func (m *Monitor) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckStatus probes the backend once and publishes the result.
// It never fails; errors map to Disconnected.
func (m *Monitor) CheckStatus(ctx context.Context) State {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	// A caller that gave up says nothing about the backend.
	if ctx.Err() != nil {
		return m.State()
	}

	next := Connected
	if err != nil {
		next = Disconnected
		m.logger.Debug("probe failed", slog.String("error", err.Error()))
	}
	m.publish(next)
	return next
}

func (m *Monitor) publish(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	if prev == next {
		return
	}
	m.logger.Info("backend state changed",
		slog.String("from", prev.String()),
		slog.String("to", next.String()))
	for _, fn := range listeners {
		fn(next)
	}
}

// StartPolling probes immediately and then every interval until Stop or
// ctx is done. A non-positive interval uses the configured one. Calling
// it while already polling is a no-op.
func (m *Monitor) StartPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.config.Interval
	}

	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	if m.cancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})

	go m.poll(pollCtx, interval, m.stopped)
}

func (m *Monitor) poll(ctx context.Context, interval time.Duration, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CheckStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckStatus(ctx)
		}
	}
}

// Stop cancels polling and waits for the poll goroutine to exit.
// Safe to call when not polling.
func (m *Monitor) Stop() {
	m.pollMu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.cancel, m.stopped = nil, nil
	m.pollMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Polling reports whether the poll loop is running.
func (m *Monitor) Polling() bool {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	return m.cancel != nil
}
