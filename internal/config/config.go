// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for mashchat.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.mashchat/config.toml
//   - ~/.mashchat/config.json
//   - ~/.mashchat/config.yaml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/fallback"
	"github.com/jeranaias/mashchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mashchat configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// Inference backend
	Ollama OllamaConfig `toml:"ollama" json:"ollama" yaml:"ollama"`

	// Conversation behaviour
	Chat ChatConfig `toml:"chat" json:"chat" yaml:"chat"`

	// Canned replies used while offline
	Fallback FallbackConfig `toml:"fallback" json:"fallback" yaml:"fallback"`

	// Microphone capture
	Audio AudioConfig `toml:"audio" json:"audio" yaml:"audio"`

	// Speech-to-text backend
	Transcribe TranscribeConfig `toml:"transcribe" json:"transcribe" yaml:"transcribe"`

	// HTTP bridge
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	Log LogConfig `toml:"log" json:"log" yaml:"log"`

	UI UIConfig `toml:"ui" json:"ui" yaml:"ui"`
}

// OllamaConfig contains the Ollama connection settings.
type OllamaConfig struct {
	// URL is the Ollama server base URL
	URL string `toml:"url" json:"url" yaml:"url"`
	// Model is the model used for every turn
	Model string `toml:"model" json:"model" yaml:"model"`
	// ProbeTimeoutSecs bounds each health probe
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs" yaml:"probe_timeout_secs"`
	// PollIntervalSecs is the time between health probes
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs" yaml:"poll_interval_secs"`
	// Offline never contacts the backend; every reply comes from the fallback rules
	Offline bool `toml:"offline" json:"offline" yaml:"offline"`
}

// ChatConfig contains conversation settings.
type ChatConfig struct {
	// SystemPrompt is sent before the history on every turn
	SystemPrompt string `toml:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
	// HistoryLimit is the number of prior messages sent with a turn
	HistoryLimit int `toml:"history_limit" json:"history_limit" yaml:"history_limit"`
	// Temperature for generation (0 = backend default)
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	// Welcome opens the conversation with an assistant greeting (empty = none)
	Welcome string `toml:"welcome" json:"welcome" yaml:"welcome"`
}

// FallbackConfig contains offline responder settings.
type FallbackConfig struct {
	// RevealIntervalMs is the delay between revealed characters
	RevealIntervalMs int `toml:"reveal_interval_ms" json:"reveal_interval_ms" yaml:"reveal_interval_ms"`
	// ChunkSize is the number of characters revealed per tick
	ChunkSize int `toml:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
	// DefaultReply is used when no rule matches
	DefaultReply string `toml:"default_reply" json:"default_reply" yaml:"default_reply"`
	// Rules replace the built-in keyword rules when set
	Rules []fallback.Rule `toml:"rules" json:"rules" yaml:"rules"`
}

// AudioConfig contains microphone capture settings.
type AudioConfig struct {
	// Enabled allows voice input
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	// Command is the recorder executable writing raw PCM to stdout
	Command string `toml:"command" json:"command" yaml:"command"`
	// Args replaces the generated recorder arguments
	Args []string `toml:"args" json:"args" yaml:"args"`
	// SampleRate in Hz
	SampleRate int `toml:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
	// Channels is 1 (mono) or 2 (stereo)
	Channels int `toml:"channels" json:"channels" yaml:"channels"`
	// MaxDurationSecs stops a recording automatically (0 = no limit)
	MaxDurationSecs int `toml:"max_duration_secs" json:"max_duration_secs" yaml:"max_duration_secs"`
}

// TranscribeConfig contains the speech-to-text settings.
type TranscribeConfig struct {
	// URL of an OpenAI-compatible API (empty = transcription disabled)
	URL string `toml:"url" json:"url" yaml:"url"`
	// APIKey is sent as a bearer token
	APIKey string `toml:"api_key" json:"api_key" yaml:"api_key"`
	// Model is the transcription model
	Model string `toml:"model" json:"model" yaml:"model"`
	// Language is an optional ISO-639-1 hint
	Language string `toml:"language" json:"language" yaml:"language"`
	// TimeoutSecs bounds one upload
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
}

// ServerConfig contains the HTTP bridge settings.
type ServerConfig struct {
	// Addr is the listen address
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	// AllowedOrigins enables CORS for these browser origins
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// SendsPerMinute limits POST requests per client; 0 disables the limit
	SendsPerMinute int `toml:"sends_per_minute" json:"sends_per_minute" yaml:"sends_per_minute"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level" yaml:"level"`
	// Format is text or json
	Format string `toml:"format" json:"format" yaml:"format"`
	// File receives logs in TUI mode (empty = ~/.mashchat/mashchat.log)
	File string `toml:"file" json:"file" yaml:"file"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Markdown renders assistant replies with glamour
	Markdown bool `toml:"markdown" json:"markdown" yaml:"markdown"`
	// GlamourStyle is a glamour style name (dark, light, notty, auto)
	GlamourStyle string `toml:"glamour_style" json:"glamour_style" yaml:"glamour_style"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Ollama: OllamaConfig{
			URL:              "http://127.0.0.1:11434",
			Model:            "llama2:7b",
			ProbeTimeoutSecs: 3,
			PollIntervalSecs: 30,
		},
		Chat: ChatConfig{
			SystemPrompt: "You are a helpful AI assistant named MASH-BOT. You are assisting users on the MASH-AI website.",
			HistoryLimit: 10,
			Temperature:  0.7,
			Welcome:      "Welcome to MASH Chatbot. How can I assist you today?",
		},
		Fallback: FallbackConfig{
			RevealIntervalMs: 10,
			ChunkSize:        1,
		},
		Audio: AudioConfig{
			Enabled:         true,
			Command:         "arecord",
			SampleRate:      16000,
			Channels:        1,
			MaxDurationSecs: 120,
		},
		Transcribe: TranscribeConfig{
			Model:       "whisper-1",
			TimeoutSecs: 60,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			SendsPerMinute: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Markdown:     true,
			GlamourStyle: "auto",
		},
	}
}

// Duration helpers.

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Ollama.ProbeTimeoutSecs) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Ollama.PollIntervalSecs) * time.Second
}

func (c *Config) RevealInterval() time.Duration {
	return time.Duration(c.Fallback.RevealIntervalMs) * time.Millisecond
}

func (c *Config) MaxRecording() time.Duration {
	return time.Duration(c.Audio.MaxDurationSecs) * time.Second
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.Transcribe.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the mashchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mashchat"), nil
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) { return configPath("config.toml") }

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) { return configPath("config.json") }

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) { return configPath("config.yaml") }

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// FindConfigFile returns the first config file present in the config
// directory.
func FindConfigFile() (string, bool) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON, ConfigPathYAML} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Load loads configuration from the first config file found in the config
// directory, falling back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	if path, ok := FindConfigFile(); ok {
		return LoadFromPath(path)
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format follows the file extension; unknown extensions
// are read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file over cfg.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// The file holds API keys and is created owner read/write only.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# mashchat configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Ollama
	if err := connection.ValidateBaseURL(c.Ollama.URL); err != nil {
		add("ollama.url", "%v", err)
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		add("ollama.model", "must not be empty")
	}
	if c.Ollama.ProbeTimeoutSecs < 1 || c.Ollama.ProbeTimeoutSecs > 60 {
		add("ollama.probe_timeout_secs", "must be between 1 and 60, got %d", c.Ollama.ProbeTimeoutSecs)
	}
	if c.Ollama.PollIntervalSecs < 1 || c.Ollama.PollIntervalSecs > 3600 {
		add("ollama.poll_interval_secs", "must be between 1 and 3600, got %d", c.Ollama.PollIntervalSecs)
	}

	// Chat
	if c.Chat.HistoryLimit < 1 || c.Chat.HistoryLimit > 100 {
		add("chat.history_limit", "must be between 1 and 100, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		add("chat.temperature", "must be between 0 and 2, got %g", c.Chat.Temperature)
	}

	// Fallback
	if c.Fallback.RevealIntervalMs < 0 || c.Fallback.RevealIntervalMs > 1000 {
		add("fallback.reveal_interval_ms", "must be between 0 and 1000, got %d", c.Fallback.RevealIntervalMs)
	}
	if c.Fallback.ChunkSize < 1 {
		add("fallback.chunk_size", "must be at least 1, got %d", c.Fallback.ChunkSize)
	}
	for i, r := range c.Fallback.Rules {
		field := fmt.Sprintf("fallback.rules[%d]", i)
		if r.Name == "" {
			add(field+".name", "must not be empty")
		}
		if len(r.Keywords) == 0 {
			add(field+".keywords", "must list at least one keyword")
		}
		for j, kw := range r.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" || strings.ContainsFunc(kw, unicode.IsSpace) {
				add(fmt.Sprintf("%s.keywords[%d]", field, j), "must be a single word, got %q", kw)
			}
		}
		if r.Reply == "" {
			add(field+".reply", "must not be empty")
		}
	}

	// Audio
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000 {
		add("audio.sample_rate", "must be between 8000 and 48000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		add("audio.channels", "must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.MaxDurationSecs < 0 {
		add("audio.max_duration_secs", "must not be negative")
	}

	// Transcribe
	if c.Transcribe.URL != "" {
		if err := connection.ValidateBaseURL(c.Transcribe.URL); err != nil {
			add("transcribe.url", "%v", err)
		}
	}
	if c.Transcribe.TimeoutSecs < 1 {
		add("transcribe.timeout_secs", "must be at least 1, got %d", c.Transcribe.TimeoutSecs)
	}

	// Server
	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.SendsPerMinute < 0 {
		add("server.sends_per_minute", "must not be negative, got %d", c.Server.SendsPerMinute)
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Version == "" {
		c.Version = def.Version
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = def.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = def.Ollama.Model
	}
	if c.Ollama.ProbeTimeoutSecs == 0 {
		c.Ollama.ProbeTimeoutSecs = def.Ollama.ProbeTimeoutSecs
	}
	if c.Ollama.PollIntervalSecs == 0 {
		c.Ollama.PollIntervalSecs = def.Ollama.PollIntervalSecs
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = def.Chat.SystemPrompt
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = def.Chat.HistoryLimit
	}
	if c.Fallback.ChunkSize == 0 {
		c.Fallback.ChunkSize = def.Fallback.ChunkSize
	}
	if c.Audio.Command == "" {
		c.Audio.Command = def.Audio.Command
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = def.Transcribe.Model
	}
	if c.Transcribe.TimeoutSecs == 0 {
		c.Transcribe.TimeoutSecs = def.Transcribe.TimeoutSecs
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.UI.GlamourStyle == "" {
		c.UI.GlamourStyle = def.UI.GlamourStyle
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - MASH_OLLAMA_URL: overrides ollama.url
//   - MASH_MODEL: overrides ollama.model
//   - MASH_OFFLINE: "1" or "true" forces fallback replies
//   - MASH_TRANSCRIBE_URL: overrides transcribe.url
//   - MASH_TRANSCRIBE_KEY: overrides transcribe.api_key (OPENAI_API_KEY is used when unset)
//   - MASH_LOG_LEVEL: overrides log.level
//   - MASH_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("MASH_OLLAMA_URL"); url != "" {
		c.Ollama.URL = url
	}
	if model := os.Getenv("MASH_MODEL"); model != "" {
		c.Ollama.Model = model
	}
	if offline := os.Getenv("MASH_OFFLINE"); offline != "" {
		c.Ollama.Offline, _ = strconv.ParseBool(offline)
	}
	if url := os.Getenv("MASH_TRANSCRIBE_URL"); url != "" {
		c.Transcribe.URL = url
	}
	if key := os.Getenv("MASH_TRANSCRIBE_KEY"); key != "" {
		c.Transcribe.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Transcribe.APIKey == "" {
		c.Transcribe.APIKey = key
	}
	if level := os.Getenv("MASH_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if addr := os.Getenv("MASH_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Fallback.Rules != nil {
		clone.Fallback.Rules = make([]fallback.Rule, len(c.Fallback.Rules))
		for i, r := range c.Fallback.Rules {
			r.Keywords = append([]string(nil), r.Keywords...)
			clone.Fallback.Rules[i] = r
		}
	}
	clone.Audio.Args = append([]string(nil), c.Audio.Args...)
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &clone
}

// String returns the configuration as TOML with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Transcribe.APIKey != "" {
		safe.Transcribe.APIKey = "[REDACTED]"
	}

	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return b.String()
}
