// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle controls one running producer. The producer derives its work from
// the context returned by NewHandle and calls Finish when it has delivered
// its terminal callback.
type Handle struct {
	cancel     context.CancelFunc
	done       chan struct{}
	finishOnce sync.Once
	cancelled  atomic.Bool
}

// NewHandle creates a handle whose context is cancelled by Cancel.
func NewHandle(parent context.Context) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Cancel requests the producer to stop at its next yield point. Safe to
// call more than once and after the producer finished.
func (h *Handle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		h.cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Done is closed once the producer delivered its terminal callback.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the producer finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish marks the producer as done and releases the context.
func (h *Handle) Finish() {
	h.finishOnce.Do(func() {
		h.cancel()
		close(h.done)
	})
}
