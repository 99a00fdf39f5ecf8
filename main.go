// mashchat - MASH assistant client for the terminal and the browser.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/jeranaias/mashchat/internal/audio"
	"github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/cli"
	"github.com/jeranaias/mashchat/internal/config"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/fallback"
	"github.com/jeranaias/mashchat/internal/logging"
	"github.com/jeranaias/mashchat/internal/ollama"
	"github.com/jeranaias/mashchat/internal/server"
	"github.com/jeranaias/mashchat/internal/stream"
	"github.com/jeranaias/mashchat/internal/transcribe"
	uichat "github.com/jeranaias/mashchat/internal/ui/chat"
	"github.com/jeranaias/mashchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds the graceful stop of the HTTP bridge.
const shutdownTimeout = 5 * time.Second

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.ErrorStyle.Render(styles.StatusIndicators.Error), err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cmd, args := cli.Parse(argv)
	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return nil
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		if len(args.Raw) > 0 {
			return fmt.Errorf("unknown command: %s", args.Raw[0])
		}
		return nil
	}

	cfg, cfgPath, err := loadConfig(args)
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	if cmd == cli.CmdConfig {
		return cli.HandleConfig(os.Stdout, cfg, args)
	}

	logger, closeLog, err := setupLogger(cfg, cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	client, err := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      cfg.ProbeTimeout(),
		DefaultModel: cfg.Ollama.Model,
	})
	if err != nil {
		return err
	}

	// Interactive modes read Ctrl+C themselves.
	signals := []os.Signal{syscall.SIGTERM}
	if cmd == cli.CmdServe || cmd == cli.CmdStatus {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	if cmd == cli.CmdStatus {
		cli.PrintStatus(os.Stdout, cli.CollectStatus(ctx, client, cfg))
		return nil
	}

	ctrl, responder, err := buildController(cfg, client, logger)
	if err != nil {
		return err
	}
	defer ctrl.Dispose()

	if cfgPath != "" {
		w, err := config.Watch(ctx, cfgPath, config.DefaultWatchDebounce, func(next *config.Config) {
			responder.SetRules(next.Fallback.Rules, next.Fallback.DefaultReply)
		}, logger)
		if err != nil {
			logger.Warn("config watch disabled", slog.String("error", err.Error()))
		} else {
			defer w.Close()
		}
	}

	ctrl.Start(ctx)
	if !cfg.Ollama.Offline {
		go checkModel(ctx, client, cfg.Ollama.Model, logger)
	}

	switch cmd {
	case cli.CmdServe:
		return runServer(ctx, ctrl, cfg, logger)
	case cli.CmdChat:
		return runREPL(ctx, ctrl, cfg, logger)
	default:
		if !cli.IsTTY() || !cli.IsStdoutTTY() {
			return runREPL(ctx, ctrl, cfg, logger)
		}
		return runTUI(ctx, ctrl, cfg)
	}
}

// =============================================================================
// SETUP
// =============================================================================

// loadConfig returns the configuration and the file it came from, if any.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	if args.Config != "" {
		cfg, err := config.LoadFromPath(args.Config)
		if err != nil {
			return nil, "", err
		}
		return cfg, args.Config, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	path, _ := config.FindConfigFile()
	return cfg, path, nil
}

func applyFlags(cfg *config.Config, args cli.Args) {
	if args.Model != "" {
		cfg.Ollama.Model = args.Model
	}
	if args.Offline {
		cfg.Ollama.Offline = true
	}
	if args.Debug {
		cfg.Log.Level = "debug"
	}
	if args.NoMarkdown {
		cfg.UI.Markdown = false
	}
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}
}

// setupLogger logs to stderr for the bridge and the status command, and
// to a file in the interactive modes so records stay off the screen.
func setupLogger(cfg *config.Config, cmd cli.Command) (*slog.Logger, func(), error) {
	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if cmd == cli.CmdServe || cmd == cli.CmdStatus {
		return logging.New(os.Stderr, opts), func() {}, nil
	}

	path := cfg.Log.File
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return logging.Discard(), func() {}, nil
		}
		path = filepath.Join(dir, "mashchat.log")
	}
	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(f, opts), func() { f.Close() }, nil
}

// buildController wires the conversation controller from cfg.
func buildController(cfg *config.Config, client *ollama.Client, logger *slog.Logger) (*chat.Controller, *fallback.Responder, error) {
	var prober connection.Prober = client
	if cfg.Ollama.Offline {
		prober = connection.Offline
	}
	monitor := connection.NewMonitor(prober, connection.Config{
		Interval: cfg.PollInterval(),
		Timeout:  cfg.ProbeTimeout(),
	}, logger)

	session := stream.NewSession(client, stream.Config{
		SystemPrompt: cfg.Chat.SystemPrompt,
		HistoryLimit: cfg.Chat.HistoryLimit,
		Model:        cfg.Ollama.Model,
		Temperature:  cfg.Chat.Temperature,
	}, logger)

	responder := fallback.NewResponder(fallback.Config{
		Rules:        cfg.Fallback.Rules,
		DefaultReply: cfg.Fallback.DefaultReply,
		Interval:     cfg.RevealInterval(),
		ChunkSize:    cfg.Fallback.ChunkSize,
	}, logger)

	var device audio.Device = audio.Unavailable
	if cfg.Audio.Enabled {
		device = &audio.CommandDevice{Command: cfg.Audio.Command, Args: cfg.Audio.Args}
	}
	recorder := audio.NewPipeline(device, audio.Config{
		Format: audio.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: 16,
		},
		MaxDuration: cfg.MaxRecording(),
	}, logger)

	transcriber := transcribe.Unavailable
	if cfg.Transcribe.URL != "" || cfg.Transcribe.APIKey != "" {
		transcriber = transcribe.NewWhisperClient(transcribe.Config{
			BaseURL:  cfg.Transcribe.URL,
			APIKey:   cfg.Transcribe.APIKey,
			Model:    cfg.Transcribe.Model,
			Language: cfg.Transcribe.Language,
			Timeout:  cfg.TranscribeTimeout(),
		}, logger)
	}

	ctrl, err := chat.New(chat.Options{
		Monitor:      monitor,
		Streamer:     session,
		Fallback:     responder,
		Recorder:     recorder,
		Transcriber:  transcriber,
		Model:        cfg.Ollama.Model,
		PollInterval: cfg.PollInterval(),
		Welcome:      cfg.Chat.Welcome,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctrl, responder, nil
}

// checkModel warns once when the configured model is not pulled.
func checkModel(ctx context.Context, client *ollama.Client, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, cli.StatusTimeout)
	defer cancel()

	ok, err := client.ModelExists(ctx, name)
	if err != nil {
		logger.Debug("model check skipped", slog.String("error", err.Error()))
		return
	}
	if !ok {
		logger.Warn("model not found; run 'ollama pull' first", slog.String("model", name))
	}
}

// =============================================================================
// MODES
// =============================================================================

func runTUI(ctx context.Context, ctrl *chat.Controller, cfg *config.Config) error {
	m := uichat.New(uichat.Options{
		Conversation: ctrl,
		Theme:        styles.NewTheme(),
		ModelName:    cfg.Ollama.Model,
		Markdown:     cfg.UI.Markdown,
		GlamourStyle: cfg.UI.GlamourStyle,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := ctrl.Subscribe(uichat.NewListener(p))
	defer unsubscribe()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func runREPL(ctx context.Context, ctrl *chat.Controller, cfg *config.Config, logger *slog.Logger) error {
	repl := cli.NewREPL(ctrl, cli.REPLOptions{
		Markdown:     cfg.UI.Markdown && cli.IsStdoutTTY(),
		GlamourStyle: cfg.UI.GlamourStyle,
		ModelName:    cfg.Ollama.Model,
		Quiet:        !cli.IsTTY(),
		Logger:       logger,
	})
	return repl.Run(ctx)
}

func runServer(ctx context.Context, ctrl *chat.Controller, cfg *config.Config, logger *slog.Logger) error {
	srv := server.New(ctrl, server.Config{
		Addr:           cfg.Server.Addr,
		Model:          cfg.Ollama.Model,
		Version:        Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendsPerMinute: cfg.Server.SendsPerMinute,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
