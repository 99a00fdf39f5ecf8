// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mashchat/internal/fallback"
)

// clearEnv isolates a test from overrides set in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MASH_OLLAMA_URL", "MASH_MODEL", "MASH_OFFLINE", "MASH_TRANSCRIBE_URL",
		"MASH_TRANSCRIBE_KEY", "OPENAI_API_KEY", "MASH_LOG_LEVEL", "MASH_ADDR",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.URL)
	assert.Equal(t, "llama2:7b", cfg.Ollama.Model)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 10*time.Millisecond, cfg.RevealInterval())
	assert.Equal(t, 120*time.Second, cfg.MaxRecording())
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.InDelta(t, 0.7, cfg.Chat.Temperature, 1e-9)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Ollama, cfg.Ollama)
}

func TestLoad_FindsFileInConfigDir(t *testing.T) {
	clearEnv(t)
	require.NoError(t, EnsureConfigDir())
	path, err := ConfigPathYAML()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("ollama:\n  model: mistral:7b\n"), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", cfg.Ollama.Model)
}

func TestLoadFromPath_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
[ollama]
url = "http://gpu-box:11434"
model = "phi3:mini"

[[fallback.rules]]
name = "hours"
keywords = ["hours", "open"]
reply = "We are open 9 to 5."
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{
  "ollama": {"url": "http://gpu-box:11434", "model": "phi3:mini"},
  "fallback": {"rules": [{"name": "hours", "keywords": ["hours", "open"], "reply": "We are open 9 to 5."}]}
}`,
		},
		{
			name: "yaml",
			file: "config.yml",
			content: `
ollama:
  url: http://gpu-box:11434
  model: phi3:mini
fallback:
  rules:
    - name: hours
      keywords: [hours, open]
      reply: We are open 9 to 5.
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := LoadFromPath(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.URL)
			assert.Equal(t, "phi3:mini", cfg.Ollama.Model)
			require.Len(t, cfg.Fallback.Rules, 1)
			assert.Equal(t, []string{"hours", "open"}, cfg.Fallback.Rules[0].Keywords)

			// Unset fields keep their defaults.
			assert.Equal(t, 30, cfg.Ollama.PollIntervalSecs)
			assert.Equal(t, "info", cfg.Log.Level)
		})
	}
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromPath(writeFile(t, "broken.toml", "[ollama\nurl ="))
	assert.Error(t, err)

	_, err = LoadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFromPath(writeFile(t, "bad.toml", "[ollama]\nurl = \"ftp://example.com\"\n"))
	require.Error(t, err)
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "ollama.url", verrs[0].Field)
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MASH_OLLAMA_URL", "http://10.0.0.5:11434")
	t.Setenv("MASH_MODEL", "llama3:8b")
	t.Setenv("MASH_OFFLINE", "true")
	t.Setenv("MASH_TRANSCRIBE_URL", "http://127.0.0.1:9000/v1")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("MASH_LOG_LEVEL", "debug")
	t.Setenv("MASH_ADDR", ":9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:11434", cfg.Ollama.URL)
	assert.Equal(t, "llama3:8b", cfg.Ollama.Model)
	assert.True(t, cfg.Ollama.Offline)
	assert.Equal(t, "http://127.0.0.1:9000/v1", cfg.Transcribe.URL)
	assert.Equal(t, "sk-fallback", cfg.Transcribe.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	t.Setenv("MASH_TRANSCRIBE_KEY", "sk-explicit")
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-explicit", cfg.Transcribe.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Ollama.URL = "file:///tmp/sock" }, "ollama.url"},
		{"missing host", func(c *Config) { c.Ollama.URL = "http://" }, "ollama.url"},
		{"empty model", func(c *Config) { c.Ollama.Model = " " }, "ollama.model"},
		{"history zero", func(c *Config) { c.Chat.HistoryLimit = 0 }, "chat.history_limit"},
		{"temperature", func(c *Config) { c.Chat.Temperature = 3 }, "chat.temperature"},
		{"chunk size", func(c *Config) { c.Fallback.ChunkSize = 0 }, "fallback.chunk_size"},
		{"rule without keywords", func(c *Config) {
			c.Fallback.Rules = []fallback.Rule{{Name: "x", Reply: "y"}}
		}, "fallback.rules[0].keywords"},
		{"multi-word keyword", func(c *Config) {
			c.Fallback.Rules = []fallback.Rule{{Name: "x", Keywords: []string{"help", "who are you"}, Reply: "y"}}
		}, "fallback.rules[0].keywords[1]"},
		{"blank keyword", func(c *Config) {
			c.Fallback.Rules = []fallback.Rule{{Name: "x", Keywords: []string{" "}, Reply: "y"}}
		}, "fallback.rules[0].keywords[0]"},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"channels", func(c *Config) { c.Audio.Channels = 6 }, "audio.channels"},
		{"transcribe url", func(c *Config) { c.Transcribe.URL = "whisper.local" }, "transcribe.url"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1, verrs.Error())
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestSetDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "arecord", cfg.Audio.Command)
	assert.Equal(t, "whisper-1", cfg.Transcribe.Model)
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.Ollama.Model = "gemma:2b"
	cfg.Transcribe.APIKey = "sk-secret"
	require.NoError(t, Save(cfg))

	path, err := ConfigPathTOML()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemma:2b", loaded.Ollama.Model)
	assert.Equal(t, "sk-secret", loaded.Transcribe.APIKey)
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Transcribe.APIKey = "sk-secret"

	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.True(t, strings.Contains(out, "llama2:7b"))
	assert.Equal(t, "sk-secret", cfg.Transcribe.APIKey)
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	cfg.Audio.Args = []string{"-q"}
	clone := cfg.Clone()
	clone.Audio.Args[0] = "-v"
	assert.Equal(t, "-q", cfg.Audio.Args[0])
	assert.Nil(t, clone.Fallback.Rules)
}
