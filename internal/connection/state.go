// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connection

// State is the tri-state reachability of the backend.
type State int

const (
	// Unknown is the state before the first probe completes.
	Unknown State = iota
	Connected
	Disconnected
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Indicator returns a short label for status bars.
func (s State) Indicator() string {
	switch s {
	case Connected:
		return "[LIVE]"
	case Disconnected:
		return "[OFFLINE]"
	default:
		return "[...]"
	}
}
