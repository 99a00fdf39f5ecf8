// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - The "status" command.

package cli

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/jeranaias/mashchat/internal/config"
	"github.com/jeranaias/mashchat/internal/transcribe"
)

// StatusTimeout bounds each backend call of the status command.
const StatusTimeout = 3 * time.Second

// Backend is the part of the Ollama client the status command needs.
// *ollama.Client implements it.
type Backend interface {
	Probe(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	ModelExists(ctx context.Context, model string) (bool, error)
}

// StatusReport is what the status command found.
type StatusReport struct {
	URL          string
	Reachable    bool
	Version      string
	Model        string
	ModelPresent bool
	ProbeError   string

	AudioEnabled  bool
	Recorder      string
	RecorderFound bool

	TranscribeURL string
}

// CollectStatus probes backend and inspects the capture and transcription
// settings of cfg. Backend failures are reported, not returned.
func CollectStatus(ctx context.Context, backend Backend, cfg *config.Config) StatusReport {
	r := StatusReport{
		URL:           cfg.Ollama.URL,
		Model:         cfg.Ollama.Model,
		AudioEnabled:  cfg.Audio.Enabled,
		Recorder:      cfg.Audio.Command,
		TranscribeURL: cfg.Transcribe.URL,
	}
	if r.TranscribeURL == "" && cfg.Transcribe.APIKey != "" {
		r.TranscribeURL = transcribe.DefaultConfig().BaseURL
	}

	if cfg.Ollama.Offline {
		r.ProbeError = "offline mode"
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, StatusTimeout)
		err := backend.Probe(probeCtx)
		cancel()
		if err != nil {
			r.ProbeError = err.Error()
		} else {
			r.Reachable = true

			vctx, cancel := context.WithTimeout(ctx, StatusTimeout)
			r.Version, _ = backend.Version(vctx)
			cancel()

			mctx, cancel := context.WithTimeout(ctx, StatusTimeout)
			r.ModelPresent, _ = backend.ModelExists(mctx, cfg.Ollama.Model)
			cancel()
		}
	}

	if r.AudioEnabled && r.Recorder != "" {
		_, err := exec.LookPath(r.Recorder)
		r.RecorderFound = err == nil
	}
	return r
}

// PrintStatus writes r to w.
func PrintStatus(w io.Writer, r StatusReport) {
	fmt.Fprintln(w, TitleStyle.Render("mashchat Status"))
	fmt.Fprintln(w, RenderSeparator(40))

	fmt.Fprintln(w, SectionStyle.Render("Backend"))
	fmt.Fprintf(w, "  %s%s\n", RenderLabel("URL:"), ValueStyle.Render(r.URL))
	if r.Reachable {
		running := "Running"
		if r.Version != "" {
			running = fmt.Sprintf("Running (v%s)", r.Version)
		}
		fmt.Fprintf(w, "  %s%s %s\n", RenderLabel("Ollama:"), RenderStatus("ok"), running)
	} else {
		fmt.Fprintf(w, "  %s%s %s\n", RenderLabel("Ollama:"), RenderStatus("fail"), r.ProbeError)
		fmt.Fprintf(w, "  %s%s\n", RenderLabel(""), DimStyle.Render("replies will come from the fallback rules"))
	}

	switch {
	case !r.Reachable:
		fmt.Fprintf(w, "  %s%s %s\n", RenderLabel("Model:"), RenderStatus("unknown"), r.Model)
	case r.ModelPresent:
		fmt.Fprintf(w, "  %s%s %s\n", RenderLabel("Model:"), RenderStatus("ok"), r.Model)
	default:
		fmt.Fprintf(w, "  %s%s %s (run: ollama pull %s)\n", RenderLabel("Model:"), RenderStatus("warn"), r.Model, r.Model)
	}

	fmt.Fprintln(w, SectionStyle.Render("Voice"))
	switch {
	case !r.AudioEnabled:
		fmt.Fprintf(w, "  %s%s\n", RenderLabel("Recorder:"), DimStyle.Render("disabled"))
	case r.RecorderFound:
		fmt.Fprintf(w, "  %s%s %s\n", RenderLabel("Recorder:"), RenderStatus("ok"), r.Recorder)
	default:
		fmt.Fprintf(w, "  %s%s %s not found in PATH\n", RenderLabel("Recorder:"), RenderStatus("fail"), r.Recorder)
	}
	if r.TranscribeURL != "" {
		fmt.Fprintf(w, "  %s%s\n", RenderLabel("Transcription:"), ValueStyle.Render(r.TranscribeURL))
	} else {
		fmt.Fprintf(w, "  %s%s\n", RenderLabel("Transcription:"), DimStyle.Render("not configured"))
	}
}
