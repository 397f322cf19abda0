// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/trygodson/llamatest/internal/model"

// EventType identifies a session event.
type EventType int

const (
	// EventEntryAppended fires for the user entry and the placeholder.
	EventEntryAppended EventType = iota
	// EventFragment fires after a fragment is folded into the placeholder.
	EventFragment
	// EventFinalized fires when the placeholder reaches a terminal state.
	EventFinalized
	// EventIdle fires after inFlight is cleared. The gate may reopen.
	EventIdle
	// EventReset fires after Reset replaced the transcript.
	EventReset
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventEntryAppended:
		return "entry_appended"
	case EventFragment:
		return "fragment"
	case EventFinalized:
		return "finalized"
	case EventIdle:
		return "idle"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event is delivered to the observer set with SetObserver.
type Event struct {
	Type     EventType
	EntryID  uint64
	Fragment string        // EventFragment only
	Outcome  model.Outcome // EventFinalized and EventIdle
}
