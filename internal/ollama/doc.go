// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The client wraps github.com/ollama/ollama/api and maps every failure onto
// a small ClientError taxonomy so callers can tell an unreachable backend
// from a stream that broke after it started.
//
// # Key Types
//
//   - Client: health probe, version, model listing and streaming chat
//   - Message: chat message with role and content
//   - ChatRequest: model, messages and generation options
//   - ClientError: categorized error (not running, timeout, model not found, ...)
//
// # Usage
//
//	client, err := ollama.NewClientWithConfig(ollama.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	for delta, err := range client.ChatStream(ctx, ollama.ChatRequest{
//	    Model:    "llama2:7b",
//	    Messages: []ollama.Message{ollama.NewUserMessage("Hello")},
//	}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(delta)
//	}
//
// Breaking out of the loop cancels the underlying request.
package ollama
