// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MIMEWAV is the MIME type of every artifact.
const MIMEWAV = "audio/wav"

// Format describes raw PCM samples.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16 kHz mono 16-bit PCM, the native Whisper input.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// BytesPerSecond returns the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration returns the playing time of n bytes of PCM.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Artifact is one finished recording.
type Artifact struct {
	ID        string
	MIMEType  string
	Format    Format
	Duration  time.Duration
	CreatedAt time.Time

	// Data holds the complete WAV file.
	Data []byte
}

// Reader returns a reader over the WAV bytes.
func (a *Artifact) Reader() io.Reader {
	return bytes.NewReader(a.Data)
}

// Filename is the name used when uploading the artifact.
func (a *Artifact) Filename() string {
	return a.ID + ".wav"
}

func newArtifact(f Format, segments [][]byte) *Artifact {
	pcm := 0
	for _, s := range segments {
		pcm += len(s)
	}
	return &Artifact{
		ID:        uuid.NewString(),
		MIMEType:  MIMEWAV,
		Format:    f,
		Duration:  f.Duration(pcm),
		CreatedAt: time.Now(),
		Data:      EncodeWAV(f, segments),
	}
}

// EncodeWAV wraps PCM segments in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(f Format, segments [][]byte) []byte {
	pcm := 0
	for _, s := range segments {
		pcm += len(s)
	}

	var buf bytes.Buffer
	buf.Grow(44 + pcm)

	blockAlign := f.Channels * f.BitsPerSample / 8
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+pcm))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.BytesPerSecond()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(pcm))
	for _, s := range segments {
		buf.Write(s)
	}
	return buf.Bytes()
}

// ErrNotWAV is returned by DecodeWAVHeader for non-WAV input.
var ErrNotWAV = errors.New("not a PCM WAV file")

// DecodeWAVHeader reads the format and data length of a canonical WAV file.
func DecodeWAVHeader(data []byte) (Format, int, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		return Format{}, 0, ErrNotWAV
	}
	le := binary.LittleEndian
	f := Format{
		Channels:      int(le.Uint16(data[22:24])),
		SampleRate:    int(le.Uint32(data[24:28])),
		BitsPerSample: int(le.Uint16(data[34:36])),
	}
	return f, int(le.Uint32(data[40:44])), nil
}

// =============================================================================
// LIBRARY
// =============================================================================

// Library keeps artifacts in memory for playback during the session.
type Library struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{artifacts: make(map[string]*Artifact)}
}

// Put stores a.
func (l *Library) Put(a *Artifact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.artifacts[a.ID] = a
}

// Get returns the artifact with the given ID.
func (l *Library) Get(id string) (*Artifact, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.artifacts[id]
	return a, ok
}

// Len returns the number of stored artifacts.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.artifacts)
}
