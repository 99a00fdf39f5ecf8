// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands of
// mashchat.
//
// # Commands
//
//   - tui: full-screen chat (default)
//   - chat: line-mode chat with input history
//   - serve: HTTP and SSE bridge for browser clients
//   - status: backend, model and capture diagnostics
//   - config [show|path|init]: configuration management
//   - version, help
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    repl := cli.NewREPL(ctrl, cli.REPLOptions{...})
//	    return repl.Run(ctx)
//	}
package cli
