// Package rlog emits the event log spec.md §6 describes: one informational
// line per lifecycle event, plus error and warning lines, all written
// through a single configured sink.
package rlog

import (
	"fmt"
	"io"
	"log/slog"
)

// typeKey is the slog attribute key the handler reads to render an
// informational line's event type.
const typeKey = "type"

// Logger is a thin formatting layer in front of slog, the same shape as the
// teacher's table/CSV printer functions: small dedicated formatters around
// one sink.
type Logger struct {
	slog *slog.Logger
}

// New creates a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{slog: slog.New(newHandler(w))}
}

// Event logs one informational line: "[rlimsup] <eventType>:<padding><msg>".
// format/args are fmt.Sprintf'd into the message, matching the original's
// message(type, fmt, ...) calling convention.
func (l *Logger) Event(eventType, format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...), slog.String(typeKey, eventType))
}

// Warning logs "rlimsup warning: <msg>".
func (l *Logger) Warning(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

// Error logs "rlimsup error: <msg>". Unlike the original's error(), this
// does not exit the process — callers decide their own exit code.
func (l *Logger) Error(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}
