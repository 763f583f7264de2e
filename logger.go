package mandelring

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discardHandler drops every record. Enabled reports false so callers skip building attributes.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(discardHandler{}))
}

// SetLogger sets the logger used by the coordinators, workers and arena. By default nothing is
// logged. Passing nil restores the default.
//
// Levels used:
//   - [slog.LevelDebug]: per-worker statistics, spawn parameters, arena layout
//   - [slog.LevelInfo]: start and completion of a render
//   - [slog.LevelWarn]: non-fatal problems, e.g. CPU pinning that could not be applied
//   - [slog.LevelError]: fatal diagnostics right before a run aborts
//
// SetLogger is safe to call concurrently with rendering.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
