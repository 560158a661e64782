package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical sits above slog.LevelError and is used for failures that stop
// a component.
const LevelCritical = slog.Level(12)

// Config holds configuration for the logger.
type Config struct {
	// Level is the minimum level of logs to output
	Level string
	// Format is "json" (default) or "text"
	Format string
	// Output is where logs are written (defaults to os.Stdout)
	Output io.Writer
	// IncludeSource adds source code location to logs
	IncludeSource bool
}

// Logger pairs a slog.Logger with the LevelVar controlling it, so the level can
// be changed on config reload.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

func New(cfg Config) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       lv,
		AddSource:   cfg.IncludeSource,
		ReplaceAttr: replaceLevel,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &Logger{Logger: slog.New(h), level: lv}
}

// SetLevel changes the minimum level at runtime. It is a no-op for loggers
// wrapped around a caller-supplied slog.Logger.
func (l *Logger) SetLevel(level string) {
	if l.level == nil {
		return
	}
	l.level.Set(ParseLevel(level))
}

func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// Wrap adapts an existing slog.Logger. Its level cannot be changed later.
func Wrap(l *slog.Logger) *Logger {
	return &Logger{Logger: l}
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// OpenOutput resolves "stdout", "stderr" or a file path into a writer.
func OpenOutput(target string) (io.Writer, func() error, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, func() error { return nil }, nil
	case "stderr":
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output %s: %w", target, err)
	}
	return f, f.Close, nil
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
