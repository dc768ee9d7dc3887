package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Fatal logs through the default slog logger and exits. For use before a
// StyledLogger exists.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// FatalWithLogger logs an unrecoverable error through the styled logger and
// exits. Deferred cleanups do not run.
func FatalWithLogger(log *StyledLogger, msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
