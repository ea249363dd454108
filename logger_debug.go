//go:build shmem_debug

package shmem

import (
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

// SetLogger sets the logger for the shmem package.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

// Debug logs a message at Debug level.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs a message at Info level.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a message at Warn level.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}
