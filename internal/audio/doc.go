// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audio records microphone input into a single WAV artifact.
//
// A Pipeline moves through Idle, Recording and Stopped. It owns exactly one
// device stream at a time: a one-slot token is taken on Start and only
// returned after the stream is closed, so a second capture can never
// overlap the first.
//
// # Key Types
//
//   - Pipeline: capture state machine with an elapsed-seconds ticker
//   - Device: opens a raw PCM stream (CommandDevice spawns arecord)
//   - Artifact: encoded WAV recording handed to transcription
//   - Library: in-memory artifact store for playback
//
// # Usage
//
//	p := audio.NewPipeline(audio.DefaultCommandDevice(), audio.DefaultConfig(), logger)
//	p.OnArtifact(func(a *audio.Artifact) { go transcribe(a) })
//	if err := p.Start(ctx); err != nil {
//	    var perm *audio.PermissionError
//	    if errors.As(err, &perm) { ... }
//	}
//	...
//	artifact, err := p.Stop(ctx)
package audio
