package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/alipan-save/internal/config"
)

// loggers is what buildLoggers produces: the logger every component uses,
// a logger bound to the log file alone, and the file's closer.
type loggers struct {
	console *slog.Logger
	file    *slog.Logger // nil without a log file
	close   func() error
}

// logLevel derives the console level. The config file provides the
// baseline; --verbose and --quiet override it.
func logLevel(cfg *config.Resolved, flags CLIFlags) slog.Level {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// buildLoggers creates the console handler per log_format and, when a log
// file is configured, tees every record at info or above into it.
func buildLoggers(cfg *config.Resolved, flags CLIFlags, stderr io.Writer) (*loggers, error) {
	level := logLevel(cfg, flags)
	console := consoleHandler(cfg.LogFormat, stderr, level)

	if cfg.LogFile == "" {
		return &loggers{console: slog.New(console), close: func() error { return nil }}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", cfg.LogFile, err)
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: min(level, slog.LevelInfo)})

	return &loggers{
		console: slog.New(newTeeHandler(console, fileHandler)),
		file:    slog.New(fileHandler),
		close:   f.Close,
	}, nil
}

// consoleHandler picks the stderr handler. "auto" renders with
// charmbracelet/log on a terminal and falls back to text otherwise.
func consoleHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}

	if isTerminal(w) {
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
		})
	}

	return slog.NewTextHandler(w, opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// teeHandler fans each record out to every handler that accepts its level.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) *teeHandler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}

		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}

	return &teeHandler{handlers: hs}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}

	return &teeHandler{handlers: hs}
}

// logStartupError appends err to the log file at path. It is used when the
// config cannot be loaded and buildLoggers never ran. A missing directory
// means there is nowhere to log; the error still reaches stderr.
func logStartupError(path string, err error) {
	if path == "" {
		return
	}

	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if openErr != nil {
		if !errors.Is(openErr, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: opening log file %s: %v\n", path, openErr)
		}

		return
	}
	defer f.Close()

	slog.New(slog.NewTextHandler(f, nil)).Error("command failed", slog.String("error", err.Error()))
}
