// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	convo "github.com/jeranaias/mashchat/internal/chat"
	"github.com/jeranaias/mashchat/internal/connection"
	"github.com/jeranaias/mashchat/internal/event"
	"github.com/jeranaias/mashchat/internal/model"
)

// fakeConversation answers every message with reply, streamed in two
// chunks through the subscribed listener.
type fakeConversation struct {
	mu        sync.Mutex
	listener  event.Listener
	messages  []model.Message
	reply     string
	fail      string
	cancelled bool
	sendErr   error
	sent      []string
	stops     int
	state     connection.State
}

func (f *fakeConversation) Subscribe(l event.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listener = nil
	}
}

func (f *fakeConversation) Send(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	if f.sendErr != nil {
		f.mu.Unlock()
		return "", f.sendErr
	}
	f.messages = append(f.messages, model.NewUserMessage(text))

	a := model.NewAssistantMessage()
	a.Content = f.reply
	switch {
	case f.fail != "":
		a.State = model.Failed{At: time.Now(), Reason: f.fail}
	default:
		a.State = model.Complete{At: time.Now(), Cancelled: f.cancelled}
	}
	f.messages = append(f.messages, a)
	l := f.listener
	reply := f.reply
	f.mu.Unlock()

	if l != nil && reply != "" {
		half := len(reply) / 2
		l.OnChunk(a.ID, reply[:half])
		l.OnChunk(a.ID, reply[half:])
		l.OnComplete(a.ID)
	}
	return a.ID, nil
}

func (f *fakeConversation) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeConversation) Wait(context.Context) error { return nil }

func (f *fakeConversation) Messages() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages...)
}

func (f *fakeConversation) Connection() connection.State { return f.state }

func runREPL(t *testing.T, conv *fakeConversation, input string) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	r := NewREPL(conv, REPLOptions{
		Input: NewScanReader(strings.NewReader(input), nil),
		Out:   &out,
		Err:   &errOut,
		Quiet: true,
	})
	require.NoError(t, r.Run(context.Background()))
	return out.String(), errOut.String()
}

func TestREPL_StreamsReply(t *testing.T) {
	conv := &fakeConversation{reply: "Hello there", state: connection.Connected}
	out, _ := runREPL(t, conv, "hi\n")

	assert.Equal(t, []string{"hi"}, conv.sent)
	assert.Contains(t, out, "MASH-BOT> Hello there")
	assert.Equal(t, 1, strings.Count(out, "MASH-BOT>"))
}

func TestREPL_ReplyStates(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		out, _ := runREPL(t, &fakeConversation{reply: "partial", cancelled: true}, "hi\n")
		assert.Contains(t, out, "[stopped]")
	})

	t.Run("failed", func(t *testing.T) {
		out, _ := runREPL(t, &fakeConversation{fail: "model not found"}, "hi\n")
		assert.Contains(t, out, "[X] model not found")
	})

	t.Run("send error", func(t *testing.T) {
		_, errOut := runREPL(t, &fakeConversation{sendErr: convo.ErrBusy}, "hi\n")
		assert.Contains(t, errOut, convo.ErrBusy.Error())
	})
}

func TestREPL_Commands(t *testing.T) {
	conv := &fakeConversation{reply: "ok", state: connection.Disconnected}
	out, errOut := runREPL(t, conv, "\n/help\n/status\n/stop\n/bogus\nfirst\n/history\n/quit\nnever sent\n")

	assert.Contains(t, out, "/history")
	assert.Contains(t, out, "[OFFLINE]")
	assert.Contains(t, out, "You: first")
	assert.Contains(t, errOut, "unknown command: /bogus")
	assert.Equal(t, 1, conv.stops)
	assert.Equal(t, []string{"first"}, conv.sent)
}

func TestREPL_Export(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConversation{reply: "Plans start at $10.", state: connection.Connected}
	out, errOut := runREPL(t, conv, "pricing?\n/export md "+dir+"\n/export json "+dir+"\n/export pdf\n")

	assert.Equal(t, 2, strings.Count(out, "Saved "))
	assert.Contains(t, errOut, "unknown export format")

	md, err := filepath.Glob(filepath.Join(dir, "*.md"))
	require.NoError(t, err)
	require.Len(t, md, 1)
	data, err := os.ReadFile(md[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Plans start at $10.")

	js, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, js, 1)
}

func TestREPL_ExportEmpty(t *testing.T) {
	_, errOut := runREPL(t, &fakeConversation{}, "/export\n")
	assert.Contains(t, errOut, "no messages")
}

func TestREPL_ExitWords(t *testing.T) {
	conv := &fakeConversation{}
	runREPL(t, conv, "EXIT\nhello\n")
	assert.Empty(t, conv.sent)
}

func TestREPL_Welcome(t *testing.T) {
	conv := &fakeConversation{state: connection.Connected}
	w := model.NewAssistantMessage()
	w.Content = convo.WelcomeText
	conv.messages = []model.Message{w}

	var out bytes.Buffer
	r := NewREPL(conv, REPLOptions{
		Input:     NewScanReader(strings.NewReader(""), nil),
		Out:       &out,
		Err:       &bytes.Buffer{},
		ModelName: "llama2:7b",
	})
	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "llama2:7b")
	assert.Contains(t, out.String(), "[LIVE]")
	assert.Contains(t, out.String(), convo.WelcomeText)
}

func TestPrinter_ConnectionNotices(t *testing.T) {
	var errOut bytes.Buffer
	r := NewREPL(&fakeConversation{}, REPLOptions{
		Input: NewScanReader(strings.NewReader(""), nil),
		Out:   &bytes.Buffer{},
		Err:   &errOut,
	})
	p := &printer{repl: r}

	p.OnConnectionChange(connection.Connected)
	assert.Empty(t, errOut.String(), "first connect is silent")

	p.OnConnectionChange(connection.Disconnected)
	assert.Contains(t, errOut.String(), convo.OfflineBanner)

	p.OnConnectionChange(connection.Connected)
	assert.Contains(t, errOut.String(), "restored")

	p.OnNotice(event.Notice{Kind: event.NoticeBusy, Text: convo.BusyNotice})
	assert.Contains(t, errOut.String(), convo.BusyNotice)
}
