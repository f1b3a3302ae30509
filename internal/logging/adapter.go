package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// MigrationLogger adapts an slog.Logger to the printf-style interface
// expected by the database migration tooling (Printf/Fatalf).
type MigrationLogger struct {
	logger *slog.Logger
}

// NewMigrationLogger creates a MigrationLogger wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewMigrationLogger(logger *slog.Logger) *MigrationLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationLogger{logger: logger}
}

// Printf logs a formatted message at info level.
func (l *MigrationLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// Fatalf logs a formatted message at error level and exits.
func (l *MigrationLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
	os.Exit(1)
}
