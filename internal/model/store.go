// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of prior messages sent with a new turn.
const DefaultHistoryLimit = 10

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidTransition is returned for any lifecycle violation. It always
	// points at a concurrency bug in the caller.
	ErrInvalidTransition = errors.New("invalid message state transition")

	// ErrNotFound is returned when no message has the given ID.
	ErrNotFound = errors.New("message not found")

	// ErrDuplicateID is returned when appending a message whose ID is taken.
	ErrDuplicateID = errors.New("duplicate message id")

	// ErrInFlight is returned when appending a non-terminal message while
	// another one is still in flight.
	ErrInFlight = errors.New("another message is in flight")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	ID   string
	From Status
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s on message %s in state %s", ErrInvalidTransition, e.Op, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// STORE
// =============================================================================

// Store is the ordered, append-only conversation log. Only the tail-most
// non-terminal message may change, and at most one such message exists.
//
// The Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []*entry
	index    map[string]int
}

type entry struct {
	msg     Message
	content strings.Builder
}

// NewStore creates an empty conversation log.
func NewStore() *Store {
	return &Store{
		messages: make([]*entry, 0, 32),
		index:    make(map[string]int),
	}
}

// Append adds a message to the end of the conversation.
func (s *Store) Append(msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("append: %w: empty id", ErrInvalidTransition)
	}
	if msg.State == nil {
		msg.State = Pending{}
	}
	if msg.Status() == StatusStreaming {
		return &TransitionError{ID: msg.ID, From: StatusStreaming, Op: "append"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[msg.ID]; ok {
		return fmt.Errorf("append %s: %w", msg.ID, ErrDuplicateID)
	}
	if !msg.IsTerminal() && s.inFlightLocked() != nil {
		return fmt.Errorf("append %s: %w", msg.ID, ErrInFlight)
	}

	e := &entry{msg: msg}
	e.content.WriteString(msg.Content)
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, e)
	return nil
}

// MarkStreaming moves a pending assistant message to Streaming.
func (s *Store) MarkStreaming(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.mutableLocked(id, "mark streaming")
	if err != nil {
		return err
	}
	if _, ok := e.msg.State.(Pending); !ok {
		return &TransitionError{ID: id, From: e.msg.Status(), Op: "mark streaming"}
	}
	e.msg.State = Streaming{Since: time.Now()}
	return nil
}

// AppendDelta concatenates text onto a streaming message.
func (s *Store) AppendDelta(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.mutableLocked(id, "append delta")
	if err != nil {
		return err
	}
	if _, ok := e.msg.State.(Streaming); !ok {
		return &TransitionError{ID: id, From: e.msg.Status(), Op: "append delta"}
	}
	e.content.WriteString(text)
	return nil
}

// MarkComplete finalizes a message with its current content.
func (s *Store) MarkComplete(id string) error {
	return s.finish(id, "mark complete", func(State) State {
		return Complete{At: time.Now()}
	})
}

// MarkTranscribed completes a pending audio message with its transcript.
func (s *Store) MarkTranscribed(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.mutableLocked(id, "mark transcribed")
	if err != nil {
		return err
	}
	if _, ok := e.msg.State.(AudioPending); !ok {
		return &TransitionError{ID: id, From: e.msg.Status(), Op: "mark transcribed"}
	}
	e.content.WriteString(text)
	e.msg.Content = e.content.String()
	e.msg.State = Complete{At: time.Now()}
	return nil
}

// MarkCancelled finalizes a message after a user stop. The partial content
// is kept and the message is complete, not failed.
func (s *Store) MarkCancelled(id string) error {
	return s.finish(id, "mark cancelled", func(State) State {
		return Complete{At: time.Now(), Cancelled: true}
	})
}

// MarkError finalizes a message as failed. Content already delivered is kept.
func (s *Store) MarkError(id, reason string) error {
	return s.finish(id, "mark error", func(from State) State {
		if _, ok := from.(AudioPending); ok {
			return AudioFailed{At: time.Now(), Reason: reason}
		}
		return Failed{At: time.Now(), Reason: reason}
	})
}

func (s *Store) finish(id, op string, next func(State) State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.mutableLocked(id, op)
	if err != nil {
		return err
	}
	e.msg.State = next(e.msg.State)
	e.msg.Content = e.content.String()
	return nil
}

// mutableLocked returns the entry if it is the in-flight tail. Caller must hold the lock.
func (s *Store) mutableLocked(id, op string) (*entry, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	e := s.messages[i]
	if e.msg.IsTerminal() {
		return nil, &TransitionError{ID: id, From: e.msg.Status(), Op: op}
	}
	if i != len(s.messages)-1 {
		return nil, &TransitionError{ID: id, From: e.msg.Status(), Op: op + " (not tail)"}
	}
	return e, nil
}

func (s *Store) inFlightLocked() *entry {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if !s.messages[i].msg.IsTerminal() {
			return s.messages[i]
		}
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a snapshot of the message with the given ID.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i].snapshot(), true
}

// Messages returns a snapshot of the whole conversation in order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	for i, e := range s.messages {
		out[i] = e.snapshot()
	}
	return out
}

// Last returns the most recent message, or false if the log is empty.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1].snapshot(), true
}

// InFlight returns the non-terminal message, if any.
func (s *Store) InFlight() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.inFlightLocked()
	if e == nil {
		return Message{}, false
	}
	return e.snapshot(), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (e *entry) snapshot() Message {
	m := e.msg
	m.Content = e.content.String()
	if m.Playback != nil {
		pb := *m.Playback
		m.Playback = &pb
	}
	return m
}

// =============================================================================
// HISTORY
// =============================================================================

// Transcript selects the messages sent to the backend as prior context.
// Only complete, non-empty text messages qualify; audio, failed and
// in-flight messages never do. The result holds at most the last limit
// qualifying messages, in order. A limit <= 0 uses DefaultHistoryLimit.
func Transcript(msgs []Message, limit int) []Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	out := make([]Message, 0, limit)
	for _, m := range msgs {
		if m.Kind != KindText || m.Status() != StatusComplete || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
