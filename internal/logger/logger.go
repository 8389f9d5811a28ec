// Package logger wraps log/slog with a filtering handler that suppresses
// third-party library noise at non-debug levels, and level parsing adapted
// from the teacher's pkg/logger. Output is always JSON.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePackagePrefix = "github.com/veyron-labs/wikiq"

var defaultLogger *slog.Logger

// ParseLevel converts a string log level to slog.Level. Unrecognized
// strings fall back to Warn, matching the teacher's conservative default.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler hides third-party library logs unless the level is
// Debug; this engine imports a lot of chatty vendor libraries (bleve,
// qdrant's grpc client) whose own logging would otherwise drown out the
// pipeline's own structured logs at Info/Warn.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, modulePackagePrefix) || strings.Contains(file, "/wikiq/")
}

// Init builds the default slog.Logger at the given level and writer,
// wiring the filtering handler, and sets it as slog's process-wide
// default so every package's package-level slog calls route through it.
func Init(level slog.Level, output *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	handler := &filteringHandler{
		handler:  slog.NewJSONHandler(output, opts),
		minLevel: level,
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// Get returns the process default logger, initializing it at Info level
// writing to stderr if Init hasn't been called yet.
func Get() *slog.Logger {
	if defaultLogger == nil {
		return Init(slog.LevelInfo, os.Stderr)
	}
	return defaultLogger
}
