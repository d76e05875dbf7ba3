package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/alipan-save/internal/config"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		cfg   string
		flags CLIFlags
		want  slog.Level
	}{
		{"default", "info", CLIFlags{}, slog.LevelInfo},
		{"config debug", "debug", CLIFlags{}, slog.LevelDebug},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn},
		{"config error", "error", CLIFlags{}, slog.LevelError},
		{"verbose wins over config", "error", CLIFlags{Verbose: true}, slog.LevelDebug},
		{"quiet wins over verbose", "debug", CLIFlags{Verbose: true, Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(&config.Resolved{LogLevel: tt.cfg}, tt.flags))
		})
	}
}

func TestConsoleHandler_Formats(t *testing.T) {
	var buf bytes.Buffer

	slog.New(consoleHandler("json", &buf, slog.LevelInfo)).Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	slog.New(consoleHandler("text", &buf, slog.LevelInfo)).Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), "msg=hello")

	// A buffer is not a terminal, so auto renders as text.
	buf.Reset()
	slog.New(consoleHandler("auto", &buf, slog.LevelInfo)).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	slog.New(consoleHandler("text", &buf, slog.LevelWarn)).Info("hidden")
	assert.Empty(t, buf.String())
}

func TestBuildLoggers_NoFile(t *testing.T) {
	var stderr bytes.Buffer

	logs, err := buildLoggers(&config.Resolved{LogLevel: "info", LogFormat: "text"}, CLIFlags{}, &stderr)
	require.NoError(t, err)

	assert.Nil(t, logs.file)
	assert.NoError(t, logs.close())

	logs.console.Info("to console")
	assert.Contains(t, stderr.String(), "to console")
}

func TestBuildLoggers_FileGetsInfoWhenQuiet(t *testing.T) {
	var stderr bytes.Buffer

	logPath := filepath.Join(t.TempDir(), "logs", "run.log")

	logs, err := buildLoggers(&config.Resolved{LogLevel: "info", LogFormat: "text", LogFile: logPath},
		CLIFlags{Quiet: true}, &stderr)
	require.NoError(t, err)

	logs.console.Debug("debug line")
	logs.console.Info("info line")
	logs.console.Error("error line")
	require.NoError(t, logs.close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "debug line")
	assert.Contains(t, string(data), "info line")
	assert.Contains(t, string(data), "error line")

	assert.NotContains(t, stderr.String(), "info line")
	assert.Contains(t, stderr.String(), "error line")
}

func TestBuildLoggers_AppendsToExistingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(logPath, []byte("previous run\n"), 0o600))

	logs, err := buildLoggers(&config.Resolved{LogLevel: "info", LogFormat: "text", LogFile: logPath},
		CLIFlags{}, &bytes.Buffer{})
	require.NoError(t, err)

	logs.console.Info("this run")
	require.NoError(t, logs.close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "previous run")
	assert.Contains(t, string(data), "this run")
}

func TestTeeHandler_WithAttrsReachesAllHandlers(t *testing.T) {
	var a, b bytes.Buffer

	tee := newTeeHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)

	logger := slog.New(tee).With(slog.String("run", "r1")).WithGroup("g")

	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger.Info("only a", slog.Int("n", 1))
	logger.Warn("both")

	assert.Contains(t, a.String(), "only a")
	assert.Contains(t, a.String(), "run=r1")
	assert.Contains(t, a.String(), "g.n=1")
	assert.NotContains(t, b.String(), "only a")
	assert.Contains(t, b.String(), "both")
	assert.Contains(t, b.String(), "run=r1")
}

func TestLogStartupError_MissingDirectoryIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "alipan-save.log")

	logStartupError(path, assert.AnError)

	_, err := os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err), "no directory is created for the log")
}
