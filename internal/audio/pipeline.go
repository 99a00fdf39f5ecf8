// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is the capture state.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ErrDeviceBusy is returned when the device token is still held.
var ErrDeviceBusy = errors.New("capture device is still in use")

// =============================================================================
// CONFIG
// =============================================================================

// Config holds pipeline settings.
type Config struct {
	Format Format

	// SegmentDuration is the size of each buffered PCM segment.
	SegmentDuration time.Duration

	// TickInterval paces the elapsed counter.
	TickInterval time.Duration

	// MaxDuration stops a recording automatically. Zero disables the limit.
	MaxDuration time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Format:          DefaultFormat,
		SegmentDuration: 100 * time.Millisecond,
		TickInterval:    time.Second,
		MaxDuration:     120 * time.Second,
	}
}

// SegmentBytes returns the byte size of one segment.
func (c Config) SegmentBytes() int {
	n := int(int64(c.Format.BytesPerSecond()) * int64(c.SegmentDuration) / int64(time.Second))
	blockAlign := c.Format.Channels * c.Format.BitsPerSample / 8
	if blockAlign > 0 {
		n -= n % blockAlign
	}
	if n <= 0 {
		n = max(blockAlign, 1)
	}
	return n
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline records from a Device. It is safe for concurrent use.
type Pipeline struct {
	device Device
	config Config
	logger *slog.Logger

	// token holds the single right to open the device.
	token chan struct{}

	// stopMu serializes Stop so only one caller finalizes a recording.
	stopMu sync.Mutex

	mu         sync.Mutex
	state      State
	stream     io.ReadCloser
	segments   [][]byte
	elapsed    int
	cancel     context.CancelFunc
	readerDone chan struct{}
	readErr    error

	onState    func(State)
	onTick     func(time.Duration)
	onArtifact func(*Artifact)
}

// NewPipeline creates an idle pipeline.
func NewPipeline(device Device, cfg Config, logger *slog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Format.SampleRate == 0 {
		cfg.Format = def.Format
	}
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = def.SegmentDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if device == nil {
		device = Unavailable
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		device: device,
		config: cfg,
		logger: logger.With(slog.String("module", "audio")),
		token:  make(chan struct{}, 1),
	}
	p.token <- struct{}{}
	return p
}

// OnState registers the state-change callback.
func (p *Pipeline) OnState(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

// OnTick registers the elapsed-time callback, called once per tick while recording.
func (p *Pipeline) OnTick(fn func(elapsed time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTick = fn
}

// OnArtifact registers the hand-off for finished recordings, including
// ones stopped automatically.
func (p *Pipeline) OnArtifact(fn func(*Artifact)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onArtifact = fn
}

// State returns the current capture state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed returns the recording time counted by the ticker.
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.elapsed) * p.config.TickInterval
}

// Start acquires the device and begins buffering. It is a no-op while
// recording. A refused device yields *PermissionError and leaves the
// pipeline Idle with nothing buffered.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case Recording:
		p.mu.Unlock()
		return nil
	case Stopped:
		p.mu.Unlock()
		return &PermissionError{Device: deviceName(p.device), Err: ErrDeviceBusy}
	}

	select {
	case <-p.token:
	default:
		p.mu.Unlock()
		return &PermissionError{Device: deviceName(p.device), Err: ErrDeviceBusy}
	}

	// The stream outlives ctx; only Stop ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := p.device.Open(runCtx, p.config.Format)
	if err != nil {
		cancel()
		p.token <- struct{}{}
		p.mu.Unlock()
		p.logger.Warn("capture device refused", slog.String("error", err.Error()))
		return &PermissionError{Device: deviceName(p.device), Err: err}
	}

	p.state = Recording
	p.stream = stream
	p.segments = nil
	p.elapsed = 0
	p.readErr = nil
	p.cancel = cancel
	p.readerDone = make(chan struct{})
	onState := p.onState
	p.mu.Unlock()

	go p.read(stream, p.readerDone)
	go p.tick(runCtx)

	p.logger.Info("recording started")
	if onState != nil {
		onState(Recording)
	}
	return nil
}

func (p *Pipeline) read(stream io.Reader, done chan struct{}) {
	defer close(done)

	size := p.config.SegmentBytes()
	for {
		seg := make([]byte, size)
		n, err := io.ReadFull(stream, seg)
		if n > 0 {
			p.mu.Lock()
			p.segments = append(p.segments, seg[:n])
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			stopping := p.state != Recording
			if !stopping && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.readErr = err
			}
			p.mu.Unlock()

			if !stopping {
				// The device went away on its own.
				go p.autoStop("device closed")
			}
			return
		}
	}
}

func (p *Pipeline) tick(ctx context.Context) {
	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.state != Recording {
				p.mu.Unlock()
				return
			}
			p.elapsed++
			elapsed := time.Duration(p.elapsed) * p.config.TickInterval
			onTick := p.onTick
			p.mu.Unlock()

			if onTick != nil {
				onTick(elapsed)
			}
			if p.config.MaxDuration > 0 && elapsed >= p.config.MaxDuration {
				go p.autoStop("max duration reached")
				return
			}
		}
	}
}

func (p *Pipeline) autoStop(reason string) {
	p.logger.Info("recording stopped automatically", slog.String("reason", reason))
	if _, err := p.Stop(context.Background()); err != nil {
		p.logger.Error("auto stop failed", slog.String("error", err.Error()))
	}
}

// Stop releases the device and finalizes the buffered segments into one
// artifact, which is also passed to the OnArtifact callback. It is a no-op
// returning nil, nil when not recording.
func (p *Pipeline) Stop(ctx context.Context) (*Artifact, error) {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	p.mu.Lock()
	if p.state != Recording {
		p.mu.Unlock()
		return nil, nil
	}
	p.state = Stopped
	stream, cancel, done := p.stream, p.cancel, p.readerDone
	onState := p.onState
	p.mu.Unlock()

	if onState != nil {
		onState(Stopped)
	}

	closeErr := stream.Close()
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		// The device stays Stopped until the reader lets go of it; the
		// recording is finalized and handed off then.
		go func() {
			<-done
			p.finalize(closeErr, onState)
		}()
		return nil, fmt.Errorf("stop recording: %w", ctx.Err())
	}
	return p.finalize(closeErr, onState), nil
}

// finalize encodes the buffered segments once the reader has exited, returns
// the pipeline to Idle and gives the device token back.
func (p *Pipeline) finalize(closeErr error, onState func(State)) *Artifact {
	p.mu.Lock()
	segments, readErr := p.segments, p.readErr
	p.segments = nil
	p.stream = nil
	p.cancel = nil
	p.state = Idle
	onArtifact := p.onArtifact
	p.mu.Unlock()

	p.token <- struct{}{}

	if closeErr != nil {
		p.logger.Debug("device close", slog.String("error", closeErr.Error()))
	}
	if readErr != nil {
		p.logger.Warn("capture read failed", slog.String("error", readErr.Error()))
	}

	artifact := newArtifact(p.config.Format, segments)
	p.logger.Info("recording stopped",
		slog.String("artifact_id", artifact.ID),
		slog.Duration("duration", artifact.Duration),
		slog.Int("segments", len(segments)))

	if onState != nil {
		onState(Idle)
	}
	if onArtifact != nil {
		onArtifact(artifact)
	}
	return artifact
}

func deviceName(d Device) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}
