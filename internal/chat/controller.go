// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/mashchat/internal/audio"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/stream"
	"github.com/jeranaias/mashchat/internal/transcribe"
)

// User-facing texts.
const (
	WelcomeText         = "Welcome to MASH Chatbot. How can I assist you today?"
	OfflineBanner       = "Ollama connection failed. Using fallback responses."
	MicrophoneNotice    = "Could not access your microphone. Please check permissions and try again."
	TranscriptionNotice = "Sorry, I couldn't transcribe your audio. Please try again or type your message."
	ErrorNotice         = "Sorry, I encountered an error processing your request. Please try again."
	BusyNotice          = "Please wait for the current reply to finish."
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy is returned while a generation or transcription is outstanding.
	ErrBusy = errors.New("a reply is already in progress")

	// ErrClosed is returned after Dispose.
	ErrClosed = errors.New("conversation is closed")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Streamer starts live generations. *stream.Session implements it.
type Streamer interface {
	Start(ctx context.Context, req stream.Request, sink event.Sink) (*event.Handle, error)
}

// Revealer starts canned replies. *fallback.Responder implements it.
type Revealer interface {
	Reveal(ctx context.Context, id, userText string, sink event.Sink) (*event.Handle, error)
}

// Options wires a Controller. Monitor, Streamer and Fallback are required.
type Options struct {
	Monitor     *connection.Monitor
	Streamer    Streamer
	Fallback    Revealer
	Recorder    *audio.Pipeline
	Transcriber transcribe.Transcriber
	Library     *audio.Library
	Store       *model.Store

	// Model overrides the stream default for every turn.
	Model string

	// PollInterval is passed to the monitor by Start.
	PollInterval time.Duration

	// Welcome, when set, opens the conversation as an assistant message.
	Welcome string

	Logger *slog.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller orchestrates one conversation. It is safe for concurrent use.
type Controller struct {
	store       *model.Store
	bus         *event.Bus
	monitor     *connection.Monitor
	streamer    Streamer
	fallback    Revealer
	recorder    *audio.Pipeline
	transcriber transcribe.Transcriber
	library     *audio.Library
	model       string
	interval    time.Duration
	logger      *slog.Logger

	// ctx outlives individual requests; producers and transcriptions run on it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	turn         *turn
	transcribing bool
	changed      chan struct{}

	disposeOnce sync.Once
}

// turn is one outstanding reply.
type turn struct {
	id       string
	userText string
	handle   *event.Handle
	stopped  bool
	fallback bool
	done     chan struct{}

	// Touched only by the producer goroutine.
	streaming bool
}

// New creates a controller. It does not start polling; call Start.
func New(opts Options) (*Controller, error) {
	if opts.Monitor == nil || opts.Streamer == nil || opts.Fallback == nil {
		return nil, errors.New("chat: monitor, streamer and fallback are required")
	}
	if opts.Store == nil {
		opts.Store = model.NewStore()
	}
	if opts.Library == nil {
		opts.Library = audio.NewLibrary()
	}
	if opts.Recorder == nil {
		opts.Recorder = audio.NewPipeline(audio.Unavailable, audio.DefaultConfig(), opts.Logger)
	}
	if opts.Transcriber == nil {
		opts.Transcriber = transcribe.Unavailable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:       opts.Store,
		bus:         event.NewBus(),
		monitor:     opts.Monitor,
		streamer:    opts.Streamer,
		fallback:    opts.Fallback,
		recorder:    opts.Recorder,
		transcriber: opts.Transcriber,
		library:     opts.Library,
		model:       opts.Model,
		interval:    opts.PollInterval,
		logger:      opts.Logger.With(slog.String("module", "chat")),
		ctx:         ctx,
		cancel:      cancel,
		changed:     make(chan struct{}),
	}

	c.monitor.OnChange(c.bus.OnConnectionChange)
	c.recorder.OnState(func(s audio.State) {
		c.bus.OnRecording(event.Recording{Active: s == audio.Recording, Elapsed: c.recorder.Elapsed()})
	})
	c.recorder.OnTick(func(elapsed time.Duration) {
		c.bus.OnRecording(event.Recording{Active: true, Elapsed: elapsed})
	})
	c.recorder.OnArtifact(c.handleArtifact)

	if opts.Welcome != "" {
		w := model.NewAssistantMessage()
		w.Content = opts.Welcome
		w.State = model.Complete{At: w.CreatedAt}
		if err := c.store.Append(w); err != nil {
			return nil, fmt.Errorf("append welcome: %w", err)
		}
	}
	return c, nil
}

// Subscribe registers a listener and returns its unsubscribe function.
func (c *Controller) Subscribe(l event.Listener) func() {
	return c.bus.Subscribe(l)
}

// Start begins health polling until ctx is done or Dispose is called.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(c.ctx, cancel)
	c.monitor.StartPolling(pollCtx, c.interval)
	c.logger.Debug("controller started")
}

// =============================================================================
// SEND / STOP
// =============================================================================

// Send appends a user turn and starts the assistant reply, returning the
// assistant message ID. The reply is streamed live when the backend is
// connected and revealed from the fallback rules otherwise.
func (c *Controller) Send(ctx context.Context, text string) (string, error) {
	return c.send(ctx, text, false)
}

func (c *Controller) send(ctx context.Context, text string, voice bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	t := &turn{userText: text, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.turn != nil || (c.transcribing && !voice) {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.turn = t
	if voice {
		c.transcribing = false
	}
	c.mu.Unlock()

	history := c.store.Messages()

	user := model.NewUserMessage(text)
	if err := c.store.Append(user); err != nil {
		c.storeError("append user message", err)
		c.finish(t)
		return "", fmt.Errorf("append user message: %w", err)
	}
	c.bus.OnMessage(user)

	reply := model.NewAssistantMessage()
	if err := c.store.Append(reply); err != nil {
		c.storeError("append assistant message", err)
		c.finish(t)
		return "", fmt.Errorf("append assistant message: %w", err)
	}
	t.id = reply.ID
	c.bus.OnMessage(reply)

	state := c.monitor.State()
	if state == connection.Unknown {
		state = c.monitor.CheckStatus(ctx)
	}

	c.logger.Info("turn started",
		slog.String("message_id", reply.ID),
		slog.String("route", route(state)),
		slog.Bool("voice", voice))

	var err error
	if state == connection.Connected {
		err = c.startStream(t, history)
	} else {
		err = c.startFallback(t)
	}
	if err != nil {
		c.fail(t, err)
		return reply.ID, err
	}
	return reply.ID, nil
}

func route(s connection.State) string {
	if s == connection.Connected {
		return "live"
	}
	return "fallback"
}

func (c *Controller) startStream(t *turn, history []model.Message) error {
	h, err := c.streamer.Start(c.ctx, stream.Request{
		MessageID: t.id,
		History:   history,
		UserText:  t.userText,
		Model:     c.model,
	}, &turnSink{c: c, t: t})
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	c.attach(t, h)
	return nil
}

func (c *Controller) startFallback(t *turn) error {
	c.mu.Lock()
	t.fallback = true
	c.mu.Unlock()

	h, err := c.fallback.Reveal(c.ctx, t.id, t.userText, &turnSink{c: c, t: t})
	if err != nil {
		return fmt.Errorf("start fallback: %w", err)
	}
	c.attach(t, h)
	return nil
}

// attach records the producer handle, honouring a Stop that arrived first.
func (c *Controller) attach(t *turn, h *event.Handle) {
	c.mu.Lock()
	t.handle = h
	stopped := t.stopped
	c.mu.Unlock()
	if stopped {
		h.Cancel()
	}
}

// Stop cancels the outstanding reply. The assistant message completes with
// whatever content it already has. No-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	t := c.turn
	if t == nil {
		c.mu.Unlock()
		return
	}
	t.stopped = true
	h := t.handle
	c.mu.Unlock()

	c.logger.Info("turn stopped by user", slog.String("message_id", t.id))
	if h != nil {
		h.Cancel()
	}
}

// fail finalizes a turn whose producer never started.
func (c *Controller) fail(t *turn, err error) {
	c.logger.Error("turn failed to start",
		slog.String("message_id", t.id),
		slog.String("error", err.Error()))
	if serr := c.store.MarkError(t.id, err.Error()); serr != nil {
		c.storeError("mark error", serr)
	}
	c.emit(t.id)
	c.bus.OnError(t.id, err.Error())
	c.finish(t)
}

func (c *Controller) finish(t *turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == t {
		c.turn = nil
		c.notifyLocked()
	}
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// emit publishes the current snapshot of a message.
func (c *Controller) emit(id string) {
	if msg, ok := c.store.Get(id); ok {
		c.bus.OnMessage(msg)
	}
}

// storeError logs a rejected store mutation. These always indicate a bug.
func (c *Controller) storeError(op string, err error) {
	c.logger.Error("store rejected update", slog.String("op", op), slog.String("error", err.Error()))
}

func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// =============================================================================
// PRODUCER SINK
// =============================================================================

// turnSink applies producer callbacks for one turn to the store and bus.
type turnSink struct {
	c *Controller
	t *turn
}

func (s *turnSink) OnChunk(id, delta string) {
	c := s.c
	if !s.t.streaming {
		if err := c.store.MarkStreaming(id); err != nil {
			c.storeError("mark streaming", err)
			return
		}
		s.t.streaming = true
		c.emit(id)
	}
	if err := c.store.AppendDelta(id, delta); err != nil {
		c.storeError("append delta", err)
		return
	}
	c.bus.OnChunk(id, delta)
}

func (s *turnSink) OnComplete(id string) {
	c := s.c

	c.mu.Lock()
	stopped := s.t.stopped
	c.mu.Unlock()

	var err error
	if stopped {
		err = c.store.MarkCancelled(id)
	} else {
		err = c.store.MarkComplete(id)
	}
	if err != nil {
		c.storeError("complete", err)
	}

	c.emit(id)
	c.bus.OnComplete(id)
	c.logger.Debug("turn complete", slog.String("message_id", id), slog.Bool("cancelled", stopped))
	c.finish(s.t)
}

func (s *turnSink) OnError(id string, err error) {
	c := s.c

	c.mu.Lock()
	stopped, fellBack := s.t.stopped, s.t.fallback
	c.mu.Unlock()

	var te *stream.TransportError
	if !stopped && !fellBack && errors.As(err, &te) && te.BeforeContent() && te.Connectivity() {
		c.logger.Warn("backend unreachable, switching to fallback",
			slog.String("message_id", id),
			slog.String("error", err.Error()))
		c.recheck()
		ferr := c.startFallback(s.t)
		if ferr == nil {
			return
		}
		err = ferr
	}

	if serr := c.store.MarkError(id, err.Error()); serr != nil {
		c.storeError("mark error", serr)
	}
	c.emit(id)
	c.bus.OnError(id, err.Error())
	c.bus.OnNotice(event.Notice{Kind: event.NoticeTransport, Text: ErrorNotice})
	c.finish(s.t)
}

// recheck refreshes the connection state after a failed stream.
func (c *Controller) recheck() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.monitor.CheckStatus(c.ctx)
	}()
}

// =============================================================================
// VOICE
// =============================================================================

// StartRecording acquires the microphone. A refused device is reported as
// a permission notice and returned as *audio.PermissionError.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := c.recorder.Start(ctx); err != nil {
		c.logger.Warn("microphone unavailable", slog.String("error", err.Error()))
		c.bus.OnNotice(event.Notice{Kind: event.NoticePermission, Text: MicrophoneNotice})
		return err
	}
	return nil
}

// StopRecording releases the microphone and hands the recording to
// transcription. The transcript is then sent like typed input. No-op when
// not recording.
func (c *Controller) StopRecording(ctx context.Context) error {
	if _, err := c.recorder.Stop(ctx); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return nil
}

// handleArtifact receives every finished recording, including auto-stops.
func (c *Controller) handleArtifact(a *audio.Artifact) {
	c.library.Put(a)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.turn != nil || c.transcribing {
		c.mu.Unlock()
		c.logger.Info("recording discarded while busy", slog.String("artifact_id", a.ID))
		c.bus.OnNotice(event.Notice{Kind: event.NoticeBusy, Text: BusyNotice})
		return
	}
	c.transcribing = true
	c.wg.Add(1)
	c.mu.Unlock()

	msg := model.NewAudioMessage(model.Playback{
		ArtifactID: a.ID,
		MIMEType:   a.MIMEType,
		Duration:   a.Duration,
	})
	if err := c.store.Append(msg); err != nil {
		c.storeError("append audio message", err)
		c.endTranscription()
		c.wg.Done()
		return
	}
	c.bus.OnMessage(msg)

	go c.transcribe(msg.ID, a)
}

func (c *Controller) transcribe(id string, a *audio.Artifact) {
	defer c.wg.Done()

	text, err := c.transcriber.Transcribe(c.ctx, a)
	if err != nil {
		c.logger.Warn("transcription failed",
			slog.String("message_id", id),
			slog.String("error", err.Error()))
		if serr := c.store.MarkError(id, err.Error()); serr != nil {
			c.storeError("mark audio failed", serr)
		}
		c.emit(id)
		c.endTranscription()
		c.bus.OnNotice(event.Notice{Kind: event.NoticeTranscription, Text: TranscriptionNotice})
		return
	}

	if err := c.store.MarkTranscribed(id, text); err != nil {
		c.storeError("mark transcribed", err)
	}
	c.emit(id)

	if _, err := c.send(c.ctx, text, true); err != nil {
		c.logger.Warn("voice turn not sent", slog.String("error", err.Error()))
		c.endTranscription()
	}
}

func (c *Controller) endTranscription() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcribing {
		c.transcribing = false
		c.notifyLocked()
	}
}

// =============================================================================
// READS
// =============================================================================

// Messages returns a snapshot of the conversation.
func (c *Controller) Messages() []model.Message {
	return c.store.Messages()
}

// Busy reports whether a reply or transcription is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn != nil || c.transcribing
}

// Connection returns the last known backend state.
func (c *Controller) Connection() connection.State {
	return c.monitor.State()
}

// Recording returns the capture state.
func (c *Controller) Recording() event.Recording {
	return event.Recording{
		Active:  c.recorder.State() == audio.Recording,
		Elapsed: c.recorder.Elapsed(),
	}
}

// Artifact returns a recorded artifact for playback.
func (c *Controller) Artifact(id string) (*audio.Artifact, bool) {
	return c.library.Get(id)
}

// Wait blocks until no reply or transcription is outstanding.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.turn == nil && !c.transcribing
		ch := c.changed
		c.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Dispose stops polling, cancels the outstanding reply, releases the
// microphone and waits for background work. Safe to call more than once.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		t := c.turn
		var h *event.Handle
		if t != nil {
			t.stopped = true
			h = t.handle
		}
		c.mu.Unlock()

		if h != nil {
			h.Cancel()
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := c.recorder.Stop(stopCtx); err != nil {
			c.logger.Warn("release microphone", slog.String("error", err.Error()))
		}
		cancel()

		c.monitor.Stop()
		c.cancel()

		if t != nil {
			<-t.done
		}
		c.wg.Wait()
		c.logger.Debug("controller disposed")
	})
}
