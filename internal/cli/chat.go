// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for mashchat.
//
// Command: chat
//
// A REPL over the conversation controller. Replies stream to stdout as
// they arrive; on a terminal, finished replies are rendered as markdown
// instead.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /history            Show the conversation
//   /export [md|json]   Write a transcript to the current directory
//   /status, /s         Show backend state
//   /stop               Stop the current reply
//   /quit, /q           Exit chat
//   Ctrl+C              Stop the current reply
//   Ctrl+D              Exit chat
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	convo "github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/export"
	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Conversation is the controller surface the REPL drives.
// *chat.Controller implements it.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
	Stop()
	Wait(ctx context.Context) error
	Messages() []model.Message
	Connection() connection.State
	Subscribe(l event.Listener) func()
}

// LineReader reads one line of input. *liner.State implements it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// NewLineReader returns a liner editor with history and arrow keys when
// stdin is a terminal, and a plain scanner otherwise.
func NewLineReader() LineReader {
	if !IsTTY() {
		return NewScanReader(os.Stdin, os.Stdout)
	}
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return line
}

// ScanReader is a LineReader over any io.Reader.
type ScanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScanReader reads lines from r and writes prompts to out.
func NewScanReader(r io.Reader, out io.Writer) *ScanReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ScanReader{scanner: s, out: out}
}

func (s *ScanReader) Prompt(prompt string) (string, error) {
	if s.out != nil {
		fmt.Fprint(s.out, prompt)
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *ScanReader) AppendHistory(string) {}

func (s *ScanReader) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

// REPLOptions configures a REPL.
type REPLOptions struct {
	// Input defaults to NewLineReader().
	Input LineReader

	// Out and Err default to stdout and stderr.
	Out io.Writer
	Err io.Writer

	// Markdown renders finished replies with glamour instead of streaming.
	Markdown bool

	// GlamourStyle is "auto" or a glamour standard style name.
	GlamourStyle string

	// ModelName is shown in the welcome banner.
	ModelName string

	// Quiet suppresses the banner.
	Quiet bool

	// ExportDir is where /export writes when no directory is given.
	ExportDir string

	Logger *slog.Logger
}

// REPL is an interactive line-mode chat.
type REPL struct {
	conv     Conversation
	in       LineReader
	out      io.Writer
	errOut   io.Writer
	renderer *glamour.TermRenderer
	model    string
	quiet    bool
	logger   *slog.Logger

	exportDir string

	// mu serializes writes from the listener and the loop.
	mu sync.Mutex
}

// NewREPL creates a REPL over conv.
func NewREPL(conv Conversation, opts REPLOptions) *REPL {
	if opts.Input == nil {
		opts.Input = NewLineReader()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &REPL{
		conv:   conv,
		in:     opts.Input,
		out:    opts.Out,
		errOut: opts.Err,
		model:  opts.ModelName,
		quiet:  opts.Quiet,
		logger: opts.Logger.With(slog.String("module", "repl")),

		exportDir: opts.ExportDir,
	}
	if opts.Markdown {
		r.renderer = newRenderer(opts.GlamourStyle)
	}
	return r
}

func newRenderer(style string) *glamour.TermRenderer {
	opt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(GetTerminalWidth()-4))
	if err != nil {
		return nil
	}
	return r
}

// Run reads input until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	defer r.in.Close()

	unsubscribe := r.conv.Subscribe(&printer{repl: r})
	defer unsubscribe()

	// Ctrl+C outside the prompt stops the reply instead of exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()
	go func() {
		for range sigChan {
			r.conv.Stop()
		}
	}()

	if !r.quiet {
		r.printWelcome()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := r.in.Prompt(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed pipe all end the session.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.println("")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if !r.handleSlashCommand(input) {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := r.exchange(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.printErr(err)
		}
	}
}

// exchange sends one message and blocks until its reply is final.
func (r *REPL) exchange(ctx context.Context, text string) error {
	id, err := r.conv.Send(ctx, text)
	if err != nil {
		return err
	}
	if err := r.conv.Wait(ctx); err != nil {
		r.conv.Stop()
		return err
	}

	msg, ok := findMessage(r.conv.Messages(), id)
	if !ok {
		return nil
	}
	r.printFinal(msg)
	return nil
}

func (r *REPL) printFinal(msg model.Message) {
	if r.renderer != nil && msg.Content != "" {
		out, err := r.renderer.Render(msg.Content)
		if err != nil {
			out = msg.Content + "\n"
		}
		r.print("\n" + AssistantStyle.Render(model.SenderAssistant.DisplayName()) + "\n" + out)
	} else {
		r.println("")
	}

	switch s := msg.State.(type) {
	case model.Complete:
		if s.Cancelled {
			r.println(DimStyle.Render(styles.StatusIndicators.Cancelled))
		}
	case model.Failed:
		r.println(ErrorStyle.Render(styles.StatusIndicators.Error + " " + s.Reason))
	}
	r.println("")
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs cmd and reports whether the session continues.
func (r *REPL) handleSlashCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	switch strings.ToLower(parts[0]) {
	case "/help", "/h", "/?", "/":
		r.printHelp()
	case "/history":
		r.printHistory()
	case "/status", "/s":
		r.println(fmt.Sprintf("%s %s", RenderLabel("Backend:"), r.conv.Connection().Indicator()))
	case "/export":
		r.exportTranscript(parts[1:])
	case "/stop":
		r.conv.Stop()
	case "/quit", "/q", "/exit":
		return false
	default:
		r.printErr(fmt.Errorf("unknown command: %s (type /help for commands)", parts[0]))
	}
	return true
}

// exportTranscript handles "/export [md|json] [dir]".
func (r *REPL) exportTranscript(args []string) {
	p := NewArgParser(args)
	format, err := export.ParseFormat(p.Positional(0))
	if err != nil {
		r.printErr(err)
		return
	}
	dir := p.Positional(1)
	if dir == "" {
		dir = r.exportDir
	}

	exp, err := export.New(format, nil)
	if err != nil {
		r.printErr(err)
		return
	}
	path, err := export.ExportToFile(r.conv.Messages(), export.Meta{Model: r.model}, exp, dir)
	if err != nil {
		r.printErr(err)
		return
	}
	r.logger.Info("transcript exported", slog.String("path", path), slog.String("format", string(format)))
	r.println(SuccessStyle.Render(styles.StatusIndicators.Success) + " Saved " + path)
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *REPL) printWelcome() {
	r.println(TitleStyle.Render("MASH chat"))
	r.println(RenderSeparator(30))
	if r.model != "" {
		r.println(RenderLabel("Model:") + ValueStyle.Render(r.model))
	}
	r.println(RenderLabel("Backend:") + r.conv.Connection().Indicator())
	r.println(DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	r.println("")

	for _, m := range r.conv.Messages() {
		r.println(AssistantStyle.Render(m.Sender.DisplayName()+"> ") + m.Content)
	}
	r.println("")
}

func (r *REPL) printHelp() {
	r.println(SectionStyle.Render("Commands"))
	for _, line := range [][2]string{
		{"/help", "Show this help"},
		{"/history", "Show the conversation"},
		{"/export", "Write a transcript (md or json) [dir]"},
		{"/status", "Show backend state"},
		{"/stop", "Stop the current reply"},
		{"/quit", "Exit (also: exit, quit, Ctrl+D)"},
	} {
		r.println("  " + RenderLabel(line[0]) + DimStyle.Render(line[1]))
	}
}

func (r *REPL) printHistory() {
	for _, m := range r.conv.Messages() {
		content := m.Content
		if m.Kind == model.KindAudio && content == "" {
			content = "(voice)"
		}
		if reason := m.ErrorReason(); reason != "" {
			content += " " + styles.StatusIndicators.Error + " " + reason
		}
		r.println(fmt.Sprintf("%s %s %s",
			DimStyle.Render(m.CreatedAt.Format("15:04")),
			AssistantStyle.Render(m.Sender.DisplayName()+":"),
			content))
	}
}

func (r *REPL) print(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, s)
}

func (r *REPL) println(s string) {
	r.print(s + "\n")
}

func (r *REPL) printErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.errOut, "%s %v\n", ErrorStyle.Render(styles.StatusIndicators.Error), err)
}

func (r *REPL) printNotice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.errOut, "%s %s\n", WarningStyle.Render(styles.StatusIndicators.Warning), text)
}

// =============================================================================
// LISTENER
// =============================================================================

// printer streams controller events to the REPL output.
type printer struct {
	event.Nop
	repl *REPL

	mu      sync.Mutex
	last    connection.State
	current string
}

func (p *printer) OnChunk(id, delta string) {
	if p.repl.renderer != nil {
		return
	}
	p.mu.Lock()
	first := id != p.current
	p.current = id
	p.mu.Unlock()

	if first {
		delta = "\n" + AssistantStyle.Render(model.SenderAssistant.DisplayName()+"> ") + delta
	}
	p.repl.print(delta)
}

func (p *printer) OnConnectionChange(state connection.State) {
	p.mu.Lock()
	prev := p.last
	p.last = state
	p.mu.Unlock()

	switch {
	case state == connection.Disconnected:
		p.repl.printNotice(convo.OfflineBanner)
	case state == connection.Connected && prev == connection.Disconnected:
		p.repl.printNotice("Ollama connection restored.")
	}
}

func (p *printer) OnNotice(n event.Notice) {
	p.repl.printNotice(n.Text)
}

func findMessage(msgs []model.Message, id string) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}
