// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package log is a thin wrapper around log/slog providing package-scoped
// loggers and pluggable output handlers.
package log

import (
	"io"
	"log/slog"
	"sync/atomic"
)

// Logger is the logging interface used across the module.
type Logger = *slog.Logger

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(DiscardHandler()))
}

// Root returns the process-wide root logger.
func Root() Logger {
	return root.Load()
}

// SetRootHandler replaces the root logger's handler.
func SetRootHandler(h slog.Handler) {
	root.Store(slog.New(h))
}

// WithContext returns a logger carrying the given key/value context,
// e.g. log.WithContext("pkg", "sweeper").
func WithContext(args ...any) Logger {
	return Root().With(args...)
}

// JSONHandler returns a handler emitting one JSON object per record.
func JSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// LogfmtHandler returns a handler emitting logfmt-style records.
func LogfmtHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
