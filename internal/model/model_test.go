// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessages(t *testing.T) {
	user := NewUserMessage("hello")
	assert.Equal(t, SenderUser, user.Sender)
	assert.Equal(t, KindText, user.Kind)
	assert.Equal(t, StatusComplete, user.Status())
	assert.True(t, user.IsTerminal())

	reply := NewAssistantMessage()
	assert.Equal(t, SenderAssistant, reply.Sender)
	assert.Equal(t, StatusPending, reply.Status())
	assert.Empty(t, reply.Content)
	assert.NotEqual(t, user.ID, reply.ID)

	audio := NewAudioMessage(Playback{ArtifactID: "a1", MIMEType: "audio/wav"})
	assert.Equal(t, KindAudio, audio.Kind)
	assert.Equal(t, StatusPending, audio.Status())
	require.NotNil(t, audio.Playback)
	assert.Equal(t, "a1", audio.Playback.ArtifactID)
}

func TestSender_DisplayName(t *testing.T) {
	assert.Equal(t, "You", SenderUser.DisplayName())
	assert.Equal(t, "MASH-BOT", SenderAssistant.DisplayName())
	assert.Equal(t, "system", Sender("system").DisplayName())
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short", "hi", 10, "hi"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"unicode", "héllo wörld", 8, "héllo..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Content: tc.content}
			assert.Equal(t, tc.want, m.Preview(tc.maxLen))
		})
	}
}

func TestMessage_MarshalJSON(t *testing.T) {
	m := NewAssistantMessage()
	m.Content = "partial"
	m.State = Failed{Reason: "stream dropped"}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "stream dropped", out["error"])
	assert.Equal(t, "partial", out["content"])
	assert.Equal(t, "assistant", out["sender"])
	assert.NotContains(t, out, "State")
	assert.NotContains(t, out, "playback")
}

// =============================================================================
// STORE LIFECYCLE TESTS
// =============================================================================

func TestStore_StreamingLifecycle(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(NewUserMessage("hi")))

	reply := NewAssistantMessage()
	require.NoError(t, s.Append(reply))
	require.NoError(t, s.MarkStreaming(reply.ID))

	for _, d := range []string{"Hel", "lo", " there"} {
		require.NoError(t, s.AppendDelta(reply.ID, d))
	}
	require.NoError(t, s.MarkComplete(reply.ID))

	got, ok := s.Get(reply.ID)
	require.True(t, ok)
	assert.Equal(t, "Hello there", got.Content)
	assert.Equal(t, StatusComplete, got.Status())
	assert.Equal(t, 2, s.Len())
}

func TestStore_ContentMonotonicWhileStreaming(t *testing.T) {
	s := NewStore()
	reply := NewAssistantMessage()
	require.NoError(t, s.Append(reply))
	require.NoError(t, s.MarkStreaming(reply.ID))

	prev := 0
	for i := 0; i < 20; i++ {
		require.NoError(t, s.AppendDelta(reply.ID, fmt.Sprintf("%d", i)))
		got, _ := s.Get(reply.ID)
		assert.GreaterOrEqual(t, len(got.Content), prev)
		prev = len(got.Content)
	}
}

func TestStore_TerminalIsFrozen(t *testing.T) {
	tests := []struct {
		name   string
		finish func(s *Store, id string) error
		status Status
	}{
		{"complete", func(s *Store, id string) error { return s.MarkComplete(id) }, StatusComplete},
		{"cancelled", func(s *Store, id string) error { return s.MarkCancelled(id) }, StatusComplete},
		{"error", func(s *Store, id string) error { return s.MarkError(id, "boom") }, StatusError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			reply := NewAssistantMessage()
			require.NoError(t, s.Append(reply))
			require.NoError(t, s.MarkStreaming(reply.ID))
			require.NoError(t, s.AppendDelta(reply.ID, "part"))
			require.NoError(t, tc.finish(s, reply.ID))

			err := s.AppendDelta(reply.ID, "more")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))

			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.status, te.From)

			assert.ErrorIs(t, s.MarkComplete(reply.ID), ErrInvalidTransition)
			assert.ErrorIs(t, s.MarkError(reply.ID, "again"), ErrInvalidTransition)
			assert.ErrorIs(t, s.MarkStreaming(reply.ID), ErrInvalidTransition)

			got, _ := s.Get(reply.ID)
			assert.Equal(t, "part", got.Content)
			assert.Equal(t, tc.status, got.Status())
		})
	}
}

func TestStore_CancelledKeepsPartial(t *testing.T) {
	s := NewStore()
	reply := NewAssistantMessage()
	require.NoError(t, s.Append(reply))
	require.NoError(t, s.MarkCancelled(reply.ID))

	got, _ := s.Get(reply.ID)
	assert.Equal(t, StatusComplete, got.Status())
	assert.Empty(t, got.Content)
	c, ok := got.State.(Complete)
	require.True(t, ok)
	assert.True(t, c.Cancelled)
}

func TestStore_InvalidTransitions(t *testing.T) {
	t.Run("delta before streaming", func(t *testing.T) {
		s := NewStore()
		reply := NewAssistantMessage()
		require.NoError(t, s.Append(reply))
		assert.ErrorIs(t, s.AppendDelta(reply.ID, "x"), ErrInvalidTransition)
	})

	t.Run("streaming twice", func(t *testing.T) {
		s := NewStore()
		reply := NewAssistantMessage()
		require.NoError(t, s.Append(reply))
		require.NoError(t, s.MarkStreaming(reply.ID))
		assert.ErrorIs(t, s.MarkStreaming(reply.ID), ErrInvalidTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := NewStore()
		assert.ErrorIs(t, s.MarkComplete("nope"), ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := NewStore()
		m := NewUserMessage("a")
		require.NoError(t, s.Append(m))
		assert.ErrorIs(t, s.Append(m), ErrDuplicateID)
	})

	t.Run("append already streaming", func(t *testing.T) {
		s := NewStore()
		m := NewAssistantMessage()
		m.State = Streaming{}
		assert.ErrorIs(t, s.Append(m), ErrInvalidTransition)
	})

	t.Run("second in-flight message", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Append(NewAssistantMessage()))
		assert.ErrorIs(t, s.Append(NewAssistantMessage()), ErrInFlight)
		assert.NoError(t, s.Append(NewUserMessage("terminal is fine")))
	})

	t.Run("in-flight not at tail", func(t *testing.T) {
		s := NewStore()
		reply := NewAssistantMessage()
		require.NoError(t, s.Append(reply))
		require.NoError(t, s.Append(NewUserMessage("after")))
		assert.ErrorIs(t, s.MarkStreaming(reply.ID), ErrInvalidTransition)
	})
}

func TestStore_AudioLifecycle(t *testing.T) {
	s := NewStore()
	ok := NewAudioMessage(Playback{ArtifactID: "a"})
	require.NoError(t, s.Append(ok))
	assert.ErrorIs(t, s.MarkStreaming(ok.ID), ErrInvalidTransition)
	require.NoError(t, s.MarkTranscribed(ok.ID, "what does it cost"))

	done, _ := s.Get(ok.ID)
	assert.Equal(t, StatusComplete, done.Status())
	assert.Equal(t, "what does it cost", done.Content)
	assert.ErrorIs(t, s.MarkTranscribed(ok.ID, "again"), ErrInvalidTransition)

	reply := NewAssistantMessage()
	require.NoError(t, s.Append(reply))
	assert.ErrorIs(t, s.MarkTranscribed(reply.ID, "x"), ErrInvalidTransition)
	require.NoError(t, s.MarkComplete(reply.ID))

	bad := NewAudioMessage(Playback{ArtifactID: "b"})
	require.NoError(t, s.Append(bad))
	require.NoError(t, s.MarkError(bad.ID, "no speech"))

	got, _ := s.Get(bad.ID)
	assert.IsType(t, AudioFailed{}, got.State)
	assert.Equal(t, StatusError, got.Status())
	assert.Equal(t, "no speech", got.ErrorReason())
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(NewAudioMessage(Playback{ArtifactID: "a"})))

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	msgs[0].Playback.ArtifactID = "mutated"

	last, ok := s.Last()
	require.True(t, ok)
	assert.Empty(t, last.Content)
	assert.Equal(t, "a", last.Playback.ArtifactID)

	inflight, ok := s.InFlight()
	require.True(t, ok)
	assert.Equal(t, last.ID, inflight.ID)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	reply := NewAssistantMessage()
	require.NoError(t, s.Append(reply))
	require.NoError(t, s.MarkStreaming(reply.ID))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Messages()
			_, _ = s.Get(reply.ID)
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, s.AppendDelta(reply.ID, "x"))
	}
	wg.Wait()

	got, _ := s.Get(reply.ID)
	assert.Equal(t, strings.Repeat("x", 100), got.Content)
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestTranscript_FiltersAndTruncates(t *testing.T) {
	var msgs []Message
	for i := 0; i < 12; i++ {
		msgs = append(msgs, NewUserMessage(fmt.Sprintf("m%d", i)))
	}

	audio := NewAudioMessage(Playback{})
	audio.Content = "transcribed"
	audio.State = Complete{}
	failed := NewAssistantMessage()
	failed.Content = "partial"
	failed.State = Failed{Reason: "x"}
	empty := NewAssistantMessage()
	empty.State = Complete{Cancelled: true}
	pending := NewAssistantMessage()

	msgs = append(msgs, audio, failed, empty, pending)

	got := Transcript(msgs, 10)
	require.Len(t, got, 10)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "m11", got[9].Content)
	for _, m := range got {
		assert.Equal(t, KindText, m.Kind)
		assert.Equal(t, StatusComplete, m.Status())
	}
}

func TestTranscript_DefaultLimit(t *testing.T) {
	var msgs []Message
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		msgs = append(msgs, NewUserMessage("x"))
	}
	assert.Len(t, Transcript(msgs, 0), DefaultHistoryLimit)
	assert.Empty(t, Transcript(nil, 3))
}
