// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for mashchat.

The view is a Bubble Tea model over a conversation controller. It never
keeps its own copy of message state: every conversation event makes it
re-read the controller's snapshot, so what is drawn is always what the
store holds.

# Key Components

## Model (model.go)

Model owns the input textarea, the scrolling viewport and the spinner.
Construct it with New and run it with tea.NewProgram.

## Listener (listener.go)

Listener turns controller callbacks into tea messages through
Program.Send. Subscribe it before starting the program.

## View (view.go, render.go)

The header shows the backend indicator ([LIVE], [OFFLINE]) and, while
capturing, the recording timer as mm:ss. Finished assistant messages are
rendered as Markdown with glamour; streaming ones are shown as plain text
with a cursor.

# Keys

  - Enter      send
  - Alt+Enter  newline
  - Esc        stop the current reply
  - Ctrl+R     start or stop recording
  - PgUp/PgDn  scroll
  - Ctrl+C     quit
*/
package chat
