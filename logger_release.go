//go:build !shmem_debug

package shmem

import "log/slog"

// SetLogger sets the logger for the shmem package.
// Without the shmem_debug tag this does nothing; the signature is kept so
// callers compile under both builds.
func SetLogger(l *slog.Logger) {}

// Debug is a no-op in release builds.
func Debug(msg string, args ...any) {}

// Info is a no-op in release builds.
func Info(msg string, args ...any) {}

// Warn is a no-op in release builds.
func Warn(msg string, args ...any) {}
