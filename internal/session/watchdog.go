// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"io"
	"sync"
	"time"
)

// idleWatchdog wraps an answer body and fires onIdle when no bytes have
// arrived for the timeout. Every successful read rearms the timer.
type idleWatchdog struct {
	r       io.ReadCloser
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newIdleWatchdog(r io.ReadCloser, timeout time.Duration, onIdle func()) *idleWatchdog {
	w := &idleWatchdog{r: r, timeout: timeout}
	w.timer = time.AfterFunc(timeout, onIdle)
	return w
}

func (w *idleWatchdog) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if n > 0 {
		w.mu.Lock()
		if !w.stopped {
			w.timer.Reset(w.timeout)
		}
		w.mu.Unlock()
	}
	return n, err
}

func (w *idleWatchdog) Close() error {
	w.Stop()
	return w.r.Close()
}

// Stop disarms the timer. Safe to call more than once.
func (w *idleWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		w.timer.Stop()
	}
}
