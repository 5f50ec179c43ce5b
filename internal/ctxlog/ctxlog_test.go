// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withLevel sets LevelVar for the duration of the test.
func withLevel(t *testing.T, level slog.Level) {
	t.Helper()

	orig := LevelVar.Level()

	LevelVar.Set(level)
	t.Cleanup(func() { LevelVar.Set(orig) })
}

func TestNewAndLogger(t *testing.T) {
	assert.Same(t, DefaultLogger, Logger(context.Background()))
	assert.Same(t, DefaultLogger, Logger(New(context.Background(), nil)))

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, custom, Logger(New(context.Background(), custom)))

	var nilLogger *slog.Logger

	ctx := context.WithValue(context.Background(), loggerKey{}, nilLogger)
	assert.Same(t, DefaultLogger, Logger(ctx))

	ctx = context.WithValue(context.Background(), loggerKey{}, "not a logger")
	assert.Same(t, DefaultLogger, Logger(ctx))
}

func TestLevelFunctions(t *testing.T) {
	var buf bytes.Buffer

	ctx := New(context.Background(), slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	testCases := []struct {
		fn    func(context.Context, string, ...any)
		level string
	}{
		{fn: Debug, level: "DEBUG"},
		{fn: Info, level: "INFO"},
		{fn: Warn, level: "WARN"},
		{fn: Error, level: "ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf.Reset()
			tc.fn(ctx, "phase started", "item", "sub-01", "phase", "skullstrip")

			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tc.level, rec["level"])
			assert.Equal(t, "phase started", rec["msg"])
			assert.Equal(t, "sub-01", rec["item"])
			assert.Equal(t, "skullstrip", rec["phase"])
		})
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		expectedLevel slog.Level
	}{
		{name: "debug", envValue: "DEBUG", expectedLevel: slog.LevelDebug},
		{name: "info", envValue: "INFO", expectedLevel: slog.LevelInfo},
		{name: "lower case", envValue: "info", expectedLevel: slog.LevelInfo},
		{name: "padded", envValue: " error ", expectedLevel: slog.LevelError},
		{name: "warn", envValue: "WARN", expectedLevel: slog.LevelWarn},
		{name: "error", envValue: "ERROR", expectedLevel: slog.LevelError},
		{name: "invalid defaults to warn", envValue: "INVALID", expectedLevel: slog.LevelWarn},
		{name: "empty defaults to warn", envValue: "", expectedLevel: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LogLevelEnvVar, tt.envValue)
			assert.Equal(t, tt.expectedLevel, logLevelFromEnv())
		})
	}
}

func TestNewForTUI(t *testing.T) {
	withLevel(t, slog.LevelInfo)

	var buf bytes.Buffer

	ctx := NewForTUI(context.Background(), &buf)
	Info(ctx, "captured", "item", "sub-01")
	Debug(ctx, "hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO: captured")
	assert.Contains(t, out, "sub-01")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[", "no escape codes in captured output")
}

func TestPackageLoggersFollowLevelVar(t *testing.T) {
	ctx := context.Background()

	withLevel(t, slog.LevelError)
	assert.False(t, DefaultLogger.Enabled(ctx, slog.LevelWarn))
	assert.False(t, JSONLogger.Enabled(ctx, slog.LevelWarn))

	LevelVar.Set(slog.LevelDebug)
	assert.True(t, DefaultLogger.Enabled(ctx, slog.LevelDebug))
	assert.True(t, JSONLogger.Enabled(ctx, slog.LevelInfo))
}
