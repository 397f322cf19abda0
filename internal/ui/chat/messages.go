// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/session"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SessionEventMsg carries a session observer event into the update loop.
type SessionEventMsg struct {
	Event session.Event
}

// ExchangeDoneMsg signals that an admitted exchange has finished.
type ExchangeDoneMsg struct {
	Exchange *session.Exchange
}

// =============================================================================
// RENDERING MESSAGES
// =============================================================================

// StreamTickMsg drives throttled redraws while an answer streams.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigReloadedMsg delivers a config file change picked up by the watcher.
type ConfigReloadedMsg struct {
	Config *config.Config
}
