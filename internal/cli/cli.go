// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for mashchat.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdServe
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdStatus:
		return "status"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Config     string // --config: explicit config file
	Model      string // --model: overrides ollama.model
	Offline    bool   // --offline: never contact the backend
	Debug      bool   // --debug: debug-level logging
	NoMarkdown bool   // --no-markdown: plain assistant output

	// serve
	Addr string

	// config
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `mashchat - MASH assistant client

Chat with a local Ollama model. When the backend is unreachable,
replies come from built-in keyword rules. Voice input is recorded
from the microphone and transcribed before sending.

Usage:
  mashchat                   Start TUI (default)
  mashchat chat              Line-mode chat
  mashchat serve [--addr A]  Start the HTTP/SSE bridge
  mashchat status, s         Show backend status
  mashchat config [show|path|init]
                             Configuration
  mashchat version           Show version
  mashchat help              Show this help

Global Flags:
  -c, --config FILE          Use FILE instead of ~/.mashchat/config.*
  -m, --model NAME           Override the Ollama model
  --offline                  Never contact Ollama; use fallback replies
  --debug                    Debug logging
  --no-markdown              Print replies without markdown rendering

TUI Keys:
  Enter                      Send
  Alt+Enter, Ctrl+J          New line
  Esc                        Stop the reply
  Ctrl+R                     Start/stop recording
  Ctrl+H                     Toggle help
  Ctrl+C                     Quit

Chat Commands:
  /help                      Show commands
  /history                   Show the conversation
  /status                    Show backend state
  /stop                      Stop the current reply
  /quit                      Exit (also: exit, quit, Ctrl+D)

Version: %s
`

// PrintUsage writes the usage text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "mashchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	// Parse global flags first
	remaining, args := parseGlobalFlags(argv)

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "chat":
		return CmdChat, args

	case "serve", "server":
		parseServeArgs(&args, remaining)
		return CmdServe, args

	case "status", "s":
		return CmdStatus, args

	case "config":
		p := NewArgParser(remaining)
		args.Subcommand = strings.ToLower(p.Subcommand())
		if args.Subcommand == "" {
			args.Subcommand = "show"
		}
		return CmdConfig, args

	case "version", "-v", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		// Unknown command: show help rather than guessing.
		args.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, args
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch arg {
		case "--offline":
			args.Offline = true
		case "--debug":
			args.Debug = true
		case "--no-markdown":
			args.NoMarkdown = true
		case "-m", "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		case "-c", "--config":
			if i+1 < len(argv) {
				i++
				args.Config = argv[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				args.Config = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, args
}

// parseServeArgs parses serve command specific arguments.
func parseServeArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Addr = p.Flag("addr")
}
