package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// LevelTrace is the level of per-entry logs: every decoded index entry
// and every extracted payload.
const LevelTrace = slog.LevelDebug - 4

// Setup configures the global slog logger to write colored logs to console.
// If logOutputDir is non-empty, logs are also written as JSON to a
// timestamped file in that directory. The returned close func flushes
// and closes that file.
func Setup(levelStr string, logOutputDir string, console io.Writer) (func() error, error) {
	level := ParseLevel(levelStr)

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})

	if logOutputDir == "" {
		slog.SetDefault(slog.New(consoleHandler))
		return func() error { return nil }, nil
	}

	logDir := os.ExpandEnv(logOutputDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("fparchive_%s.log", timestamp))

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})

	slog.SetDefault(slog.New(
		slogmulti.Fanout(consoleHandler, fileHandler),
	))

	fmt.Fprintf(os.Stderr, "Logging to file: %s\n", logFilePath)

	return logFile.Close, nil
}

// ParseLevel converts a string log level to slog.Level.
// Unknown values fall back to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
