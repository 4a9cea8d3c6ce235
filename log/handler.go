// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type discardHandler struct{}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h *discardHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (h *discardHandler) WithGroup(_ string) slog.Handler               { return &discardHandler{} }
func (h *discardHandler) WithAttrs(_ []slog.Attr) slog.Handler          { return &discardHandler{} }

// TerminalHandler formats records for human consumption:
//
//	[LEVEL] [TIME] MESSAGE key=value key=value ...
//
// Intended for interactive use only.
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	level    slog.Level
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler returns a terminal handler with optional ANSI colored
// level tags.
func NewTerminalHandler(wr io.Writer, level slog.Level, useColor bool) *TerminalHandler {
	return &TerminalHandler{
		wr:       wr,
		level:    level,
		useColor: useColor,
	}
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TerminalHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{
		wr:       h.wr,
		level:    h.level,
		useColor: h.useColor,
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, 0, 128)
	buf = append(buf, '[')
	buf = append(buf, h.levelTag(r.Level)...)
	buf = append(buf, "] ["...)
	buf = r.Time.AppendFormat(buf, "Jan 02 15:04:05")
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)
	for _, attr := range h.attrs {
		buf = appendAttr(buf, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		buf = appendAttr(buf, attr)
		return true
	})
	buf = append(buf, '\n')
	_, err := h.wr.Write(buf)
	return err
}

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorGreen  = "\x1b[32m"
	colorCyan   = "\x1b[36m"
	colorReset  = "\x1b[0m"
)

func (h *TerminalHandler) levelTag(level slog.Level) string {
	tag, color := "INFO", colorGreen
	switch {
	case level >= slog.LevelError:
		tag, color = "EROR", colorRed
	case level >= slog.LevelWarn:
		tag, color = "WARN", colorYellow
	case level < slog.LevelInfo:
		tag, color = "DBUG", colorCyan
	}
	if !h.useColor {
		return tag
	}
	return color + tag + colorReset
}

func appendAttr(buf []byte, attr slog.Attr) []byte {
	buf = append(buf, ' ')
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	return fmt.Appendf(buf, "%v", attr.Value.Any())
}
