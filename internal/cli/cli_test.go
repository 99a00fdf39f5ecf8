// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mashchat/internal/config"
)

// =============================================================================
// PARSE
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{
			name:    "no args starts tui",
			args:    nil,
			wantCmd: CmdTUI,
		},
		{
			name:    "chat with model flag",
			args:    []string{"--model", "llama3:8b", "chat"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "llama3:8b", a.Model)
			},
		},
		{
			name:    "model with equals after command",
			args:    []string{"chat", "--model=qwen2.5"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "qwen2.5", a.Model)
			},
		},
		{
			name:    "serve with addr",
			args:    []string{"serve", "--addr", "127.0.0.1:9000"},
			wantCmd: CmdServe,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "127.0.0.1:9000", a.Addr)
			},
		},
		{
			name:    "offline and config",
			args:    []string{"--offline", "-c", "/tmp/m.toml", "status"},
			wantCmd: CmdStatus,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.Offline)
				assert.Equal(t, "/tmp/m.toml", a.Config)
			},
		},
		{
			name:    "status alias",
			args:    []string{"s"},
			wantCmd: CmdStatus,
		},
		{
			name:    "config defaults to show",
			args:    []string{"config"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
			},
		},
		{
			name:    "config init force",
			args:    []string{"config", "init", "--force"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "init", a.Subcommand)
				assert.True(t, NewArgParser(a.Raw).BoolFlag("force"))
			},
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "unknown command shows help",
			args:    []string{"frobnicate"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, []string{"frobnicate"}, a.Raw)
			},
		},
		{
			name:    "debug and no-markdown",
			args:    []string{"--debug", "--no-markdown", "tui"},
			wantCmd: CmdTUI,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.Debug)
				assert.True(t, a.NoMarkdown)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Parse(tt.args)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"init", "--force", "--addr", "x:1", "--level=debug", "--json=false", "extra"})
	assert.Equal(t, "init", p.Subcommand())
	assert.True(t, p.BoolFlag("force"))
	assert.False(t, p.BoolFlag("json"))
	assert.Equal(t, "x:1", p.Flag("addr"))
	assert.Equal(t, "debug", p.Flag("--level"))
	assert.Equal(t, "extra", p.Positional(1))
	assert.Empty(t, p.Positional(5))
}

func TestPrintUsageAndVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	assert.Contains(t, buf.String(), "mashchat serve")
	assert.Contains(t, buf.String(), Version)

	buf.Reset()
	PrintVersion(&buf)
	assert.Contains(t, buf.String(), "mashchat version "+Version)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestHandleConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.Transcribe.APIKey = "sk-secret"

	t.Run("show redacts secrets", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, HandleConfig(&buf, cfg, Args{Subcommand: "show"}))
		assert.Contains(t, buf.String(), "[REDACTED]")
		assert.NotContains(t, buf.String(), "sk-secret")
	})

	t.Run("init writes once", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, HandleConfig(&buf, cfg, Args{Subcommand: "init"}))

		path, err := config.ConfigPathTOML()
		require.NoError(t, err)
		_, err = os.Stat(path)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), filepath.Base(path))

		err = HandleConfig(&buf, cfg, Args{Subcommand: "init"})
		assert.ErrorIs(t, err, ErrConfigExists)

		require.NoError(t, HandleConfig(&buf, cfg, Args{Subcommand: "init", Raw: []string{"--force"}}))
	})

	t.Run("unknown subcommand", func(t *testing.T) {
		err := HandleConfig(&bytes.Buffer{}, cfg, Args{Subcommand: "nope"})
		assert.Error(t, err)
	})
}

// =============================================================================
// STATUS
// =============================================================================

type fakeBackend struct {
	probeErr error
	version  string
	models   map[string]bool
}

func (f *fakeBackend) Probe(context.Context) error { return f.probeErr }

func (f *fakeBackend) Version(context.Context) (string, error) { return f.version, nil }

func (f *fakeBackend) ModelExists(_ context.Context, name string) (bool, error) {
	return f.models[name], nil
}

func TestCollectStatus(t *testing.T) {
	t.Run("reachable with model", func(t *testing.T) {
		cfg := config.Default()
		cfg.Audio.Enabled = false
		r := CollectStatus(context.Background(), &fakeBackend{
			version: "0.5.7",
			models:  map[string]bool{cfg.Ollama.Model: true},
		}, cfg)
		assert.True(t, r.Reachable)
		assert.True(t, r.ModelPresent)
		assert.Equal(t, "0.5.7", r.Version)

		var buf bytes.Buffer
		PrintStatus(&buf, r)
		assert.Contains(t, buf.String(), "Running (v0.5.7)")
		assert.Contains(t, buf.String(), "disabled")
	})

	t.Run("unreachable", func(t *testing.T) {
		cfg := config.Default()
		r := CollectStatus(context.Background(), &fakeBackend{probeErr: errors.New("connection refused")}, cfg)
		assert.False(t, r.Reachable)
		assert.Equal(t, "connection refused", r.ProbeError)

		var buf bytes.Buffer
		PrintStatus(&buf, r)
		assert.Contains(t, buf.String(), "[FAIL]")
		assert.Contains(t, buf.String(), "fallback rules")
	})

	t.Run("offline skips probe", func(t *testing.T) {
		cfg := config.Default()
		cfg.Ollama.Offline = true
		backend := &fakeBackend{}
		r := CollectStatus(context.Background(), backend, cfg)
		assert.False(t, r.Reachable)
		assert.Equal(t, "offline mode", r.ProbeError)
	})

	t.Run("missing model and recorder", func(t *testing.T) {
		cfg := config.Default()
		cfg.Audio.Command = "definitely-not-a-recorder-binary"
		cfg.Transcribe.APIKey = "sk"
		r := CollectStatus(context.Background(), &fakeBackend{}, cfg)
		assert.False(t, r.ModelPresent)
		assert.False(t, r.RecorderFound)
		assert.True(t, strings.HasPrefix(r.TranscribeURL, "https://"))

		var buf bytes.Buffer
		PrintStatus(&buf, r)
		assert.Contains(t, buf.String(), "ollama pull "+cfg.Ollama.Model)
		assert.Contains(t, buf.String(), "not found in PATH")
	})
}
