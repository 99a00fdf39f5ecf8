// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Device opens a raw PCM capture stream. Closing the stream releases the
// device.
type Device interface {
	Open(ctx context.Context, f Format) (io.ReadCloser, error)
}

// DeviceFunc adapts a function to a Device.
type DeviceFunc func(ctx context.Context, f Format) (io.ReadCloser, error)

// Open calls fn(ctx, f).
func (fn DeviceFunc) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	return fn(ctx, f)
}

// ErrNoDevice is returned when no capture device is configured.
var ErrNoDevice = errors.New("no capture device available")

// Unavailable is a Device that always refuses access.
var Unavailable Device = DeviceFunc(func(context.Context, Format) (io.ReadCloser, error) {
	return nil, ErrNoDevice
})

// PermissionError reports that the capture device could not be acquired.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device == "" {
		return "microphone access denied: " + e.Err.Error()
	}
	return fmt.Sprintf("microphone access denied (%s): %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// COMMAND DEVICE
// =============================================================================

// CommandDevice captures audio by spawning a recorder process that writes
// raw little-endian PCM to stdout.
type CommandDevice struct {
	// Command is the recorder executable (default "arecord").
	Command string

	// Args replaces the generated arguments when set.
	Args []string
}

// DefaultCommandDevice records with ALSA's arecord.
func DefaultCommandDevice() *CommandDevice {
	return &CommandDevice{Command: "arecord"}
}

// Arguments returns the recorder arguments for f.
func (d *CommandDevice) Arguments(f Format) []string {
	if len(d.Args) > 0 {
		return d.Args
	}
	return []string{
		"-q",
		"-t", "raw",
		"-f", "S" + strconv.Itoa(f.BitsPerSample) + "_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
	}
}

// Open starts the recorder. A recorder that cannot be started is reported
// as a PermissionError by the pipeline.
func (d *CommandDevice) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	name := d.Command
	if name == "" {
		name = "arecord"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, d.Arguments(f)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &commandStream{cmd: cmd, stdout: stdout}, nil
}

// String names the device in errors.
func (d *CommandDevice) String() string {
	if d.Command == "" {
		return "arecord"
	}
	return d.Command
}

type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reap   sync.Once
}

// Read reaps the recorder once its output ends.
func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != nil {
		s.reap.Do(func() { _ = s.cmd.Wait() })
	}
	return n, err
}

// Close kills the recorder. The pending Read then sees end of stream.
func (s *commandStream) Close() error {
	if s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
