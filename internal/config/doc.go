// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for mashchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OllamaConfig: Backend URL, model and health polling
//   - FallbackConfig: Offline keyword rules and reveal pacing
//   - AudioConfig, TranscribeConfig: Voice input
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MASH_*)
//   - ~/.mashchat/config.toml
//   - ~/.mashchat/config.json
//   - ~/.mashchat/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.PollInterval()
package config
