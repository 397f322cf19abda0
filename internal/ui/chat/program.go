// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trygodson/llamatest/internal/config"
	"github.com/trygodson/llamatest/internal/session"
)

// =============================================================================
// PROGRAM
// =============================================================================

// Run shows the chat screen until the user quits or ctx is canceled.
// Session events are forwarded into the program. When configPath is set
// the file is watched and changes are applied to the running screen.
func Run(ctx context.Context, gate *session.Gate, configPath string, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	opts.Context = ctx

	p := tea.NewProgram(New(gate, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	mgr := gate.Manager()
	mgr.SetObserver(func(ev session.Event) {
		p.Send(SessionEventMsg{Event: ev})
	})
	defer mgr.SetObserver(nil)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(cfg *config.Config) {
				p.Send(ConfigReloadedMsg{Config: cfg})
			})
			if err != nil && opts.Logger != nil {
				opts.Logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
