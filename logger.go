// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/framegraph/alloc"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from the render thread.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for framegraph and its sub-packages.
// By default, framegraph produces no log output. Pass nil to disable
// logging again (restore default silent behavior).
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
//
// Log levels used by framegraph:
//   - [slog.LevelDebug]: compile statistics, allocation and aliasing events
//   - [slog.LevelInfo]: pool lifecycle (reinitialize, allocator selected)
//   - [slog.LevelWarn]: fallback size policy taken, frame aborted
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	alloc.SetLogger(l)
}

// Logger returns the current logger used by framegraph.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
