// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchProber fails while down is set.
type switchProber struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (p *switchProber) Probe(ctx context.Context) error {
	p.calls.Add(1)
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

// =============================================================================
// STATE TESTS
// =============================================================================

func TestState_String(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())

	text, err := Connected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "connected", string(text))
}

// =============================================================================
// MONITOR TESTS
// =============================================================================

func TestMonitor_CheckStatus(t *testing.T) {
	p := &switchProber{}
	m := NewMonitor(p, Config{}, nil)
	assert.Equal(t, Unknown, m.State())

	var mu sync.Mutex
	var changes []State
	m.OnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, s)
	})

	assert.Equal(t, Connected, m.CheckStatus(context.Background()))
	assert.Equal(t, Connected, m.CheckStatus(context.Background()))

	p.down.Store(true)
	assert.Equal(t, Disconnected, m.CheckStatus(context.Background()))
	assert.Equal(t, Disconnected, m.State())

	p.down.Store(false)
	assert.Equal(t, Connected, m.CheckStatus(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connected, Disconnected, Connected}, changes)
}

func TestMonitor_OnChangeDuringDispatch(t *testing.T) {
	p := &switchProber{}
	m := NewMonitor(p, Config{}, nil)

	var first, late atomic.Int32
	m.OnChange(func(State) {
		if first.Add(1) == 1 {
			m.OnChange(func(State) { late.Add(1) })
		}
	})

	m.CheckStatus(context.Background())
	assert.Equal(t, int32(1), first.Load())
	assert.Zero(t, late.Load(), "listener added during dispatch waits for the next change")

	p.down.Store(true)
	m.CheckStatus(context.Background())
	assert.Equal(t, int32(2), first.Load())
	assert.Equal(t, int32(1), late.Load())
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	slow := ProberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m := NewMonitor(slow, Config{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	assert.Equal(t, Disconnected, m.CheckStatus(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMonitor_Offline(t *testing.T) {
	m := NewMonitor(Offline, DefaultConfig(), nil)
	assert.Equal(t, Disconnected, m.CheckStatus(context.Background()))
}

func TestMonitor_Polling(t *testing.T) {
	p := &switchProber{}
	m := NewMonitor(p, DefaultConfig(), nil)

	m.StartPolling(context.Background(), 10*time.Millisecond)
	m.StartPolling(context.Background(), 10*time.Millisecond)
	assert.True(t, m.Polling())

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Connected, m.State())

	p.down.Store(true)
	require.Eventually(t, func() bool { return m.State() == Disconnected }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.Polling())

	after := p.calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, p.calls.Load())
}

func TestMonitor_PollingStopsWithContext(t *testing.T) {
	p := &switchProber{}
	m := NewMonitor(p, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.StartPolling(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	m.Stop()
	assert.False(t, m.Polling())
}

// =============================================================================
// URL VALIDATION TESTS
// =============================================================================

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"http://localhost:11434", nil},
		{"https://ollama.example.com", nil},
		{"HTTP://127.0.0.1:11434", nil},
		{"file:///etc/passwd", ErrInvalidURLScheme},
		{"javascript:alert(1)", ErrInvalidURLScheme},
		{"localhost:11434", ErrInvalidURLScheme},
		{"http://", ErrMissingHost},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			err := ValidateBaseURL(tc.url)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST:11434", true},
		{"127.0.0.1", true},
		{"127.1.2.3:80", true},
		{"::1", true},
		{"[::1]:11434", true},
		{"0:0:0:0:0:0:0:1", true},
		{"example.com", false},
		{"10.0.0.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLocalhost(tc.host))
		})
	}
}
