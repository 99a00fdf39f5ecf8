// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (r *reloads) add(c *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, c)
}

func (r *reloads) last() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return nil
	}
	return r.cfgs[len(r.cfgs)-1]
}

func (r *reloads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs)
}

func startWatch(t *testing.T, path string) *reloads {
	t.Helper()
	got := &reloads{}
	w, err := Watch(context.Background(), path, 20*time.Millisecond, got.add, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return got
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[fallback]\ndefault_reply = \"first\"\n")
	got := startWatch(t, path)

	require.NoError(t, os.WriteFile(path, []byte("[fallback]\ndefault_reply = \"second\"\n"), 0600))

	require.Eventually(t, func() bool {
		c := got.last()
		return c != nil && c.Fallback.DefaultReply == "second"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatch_SkipsInvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[fallback]\ndefault_reply = \"first\"\n")
	got := startWatch(t, path)

	require.NoError(t, os.WriteFile(path, []byte("[ollama]\nurl = \"ftp://nope\"\n"), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, got.count())

	// A later valid write still gets through.
	require.NoError(t, os.WriteFile(path, []byte("[chat]\nhistory_limit = 4\n"), 0600))
	require.Eventually(t, func() bool {
		c := got.last()
		return c != nil && c.Chat.HistoryLimit == 4
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "")
	got := startWatch(t, path)

	require.NoError(t, os.WriteFile(path+".bak", []byte("junk"), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, got.count())
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), "/nonexistent-mashchat-dir/config.toml", 0, func(*Config) {}, nil)
	assert.Error(t, err)
}
