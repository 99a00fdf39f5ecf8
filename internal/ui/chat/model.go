// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
	"github.com/jeranaias/mashchat/internal/ui/styles"
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the controller surface the view drives.
// *chat.Controller implements it.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
	Stop()
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Messages() []model.Message
	Busy() bool
	Connection() connection.State
	Recording() event.Recording
}

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// NoticeDuration is how long an inline notice stays visible.
	NoticeDuration = 6 * time.Second

	// MaxInputLength bounds the textarea.
	MaxInputLength = 8000

	inputHeight = 3
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Model.
type Options struct {
	// Conversation is required.
	Conversation Conversation

	// Theme defaults to styles.NewTheme().
	Theme *styles.Theme

	// ModelName is shown in the header.
	ModelName string

	// Markdown renders finished assistant replies with glamour.
	Markdown bool

	// GlamourStyle is "auto" or a glamour standard style name.
	GlamourStyle string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat view.
type Model struct {
	conv  Conversation
	theme *styles.Theme
	keys  KeyMap
	ctx   context.Context

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	markdown     bool
	glamourStyle string
	renderer     *glamour.TermRenderer
	rendered     map[string]string

	modelName  string
	messages   []model.Message
	connection connection.State
	recording  event.Recording
	busy       bool

	notice    *event.Notice
	noticeSeq int

	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates the chat view.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Ask MASH anything..."
	ta.ShowLineNumbers = false
	ta.CharLimit = MaxInputLength
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.AssistantLabel

	m := Model{
		conv:         opts.Conversation,
		theme:        theme,
		keys:         keys,
		ctx:          context.Background(),
		input:        ta,
		viewport:     viewport.New(80, 20),
		spinner:      sp,
		help:         help.New(),
		markdown:     opts.Markdown,
		glamourStyle: opts.GlamourStyle,
		rendered:     make(map[string]string),
		modelName:    opts.ModelName,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// refresh re-reads the controller snapshot.
func (m *Model) refresh() {
	m.messages = m.conv.Messages()
	m.connection = m.conv.Connection()
	m.recording = m.conv.Recording()
	m.busy = m.conv.Busy()
}

// setRenderer rebuilds the markdown renderer for the content width and
// drops cached renders.
func (m *Model) setRenderer(width int) {
	m.rendered = make(map[string]string)
	if !m.markdown {
		m.renderer = nil
		return
	}

	style := glamour.WithAutoStyle()
	if m.glamourStyle != "" && m.glamourStyle != "auto" {
		style = glamour.WithStandardStyle(m.glamourStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(max(width, 20)))
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// Messages returns the snapshot currently drawn.
func (m Model) Messages() []model.Message {
	return m.messages
}

// Notice returns the visible notice, if any.
func (m Model) Notice() (event.Notice, bool) {
	if m.notice == nil {
		return event.Notice{}, false
	}
	return *m.notice, true
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}
