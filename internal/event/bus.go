// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package event

import (
	"sync"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/model"
)

// Bus is a Listener that forwards every call to its subscribers in
// subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

func (b *Bus) each(fn func(Listener)) {
	b.mu.RLock()
	ls := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		ls = append(ls, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range ls {
		fn(l)
	}
}

func (b *Bus) OnMessage(msg model.Message) {
	b.each(func(l Listener) { l.OnMessage(msg) })
}

func (b *Bus) OnChunk(id, delta string) {
	b.each(func(l Listener) { l.OnChunk(id, delta) })
}

func (b *Bus) OnComplete(id string) {
	b.each(func(l Listener) { l.OnComplete(id) })
}

func (b *Bus) OnError(id, reason string) {
	b.each(func(l Listener) { l.OnError(id, reason) })
}

func (b *Bus) OnConnectionChange(state connection.State) {
	b.each(func(l Listener) { l.OnConnectionChange(state) })
}

func (b *Bus) OnRecording(rec Recording) {
	b.each(func(l Listener) { l.OnRecording(rec) })
}

func (b *Bus) OnNotice(n Notice) {
	b.each(func(l Listener) { l.OnNotice(n) })
}
