// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTerminalHandler(&buf, slog.LevelInfo, false))

	logger.Info("swept", "delta", 42)
	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "swept")
	assert.Contains(t, out, "delta=42")

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	SetRootHandler(NewTerminalHandler(&buf, slog.LevelDebug, false))
	defer SetRootHandler(DiscardHandler())

	WithContext("pkg", "ledger").Info("minted")
	assert.Contains(t, buf.String(), "pkg=ledger")
}
