package rlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// tabColumn is the column width the original's message() pads event types
// to, in 8-space tab steps, before appending one more separating tab.
const tabColumn = 22

// handler renders slog records in the three line shapes spec.md §6 names:
// "[rlimsup] <type>:<padding><message>" for Info records carrying a "type"
// attribute, "rlimsup warning: <message>" for Warn, "rlimsup error:
// <message>" for Error.
type handler struct {
	mu sync.Mutex
	w  io.Writer
}

func newHandler(w io.Writer) *handler {
	return &handler{w: w}
}

func (h *handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch r.Level {
	case slog.LevelError:
		_, err := fmt.Fprintf(h.w, "rlimsup error: %s\n", r.Message)
		return err
	case slog.LevelWarn:
		_, err := fmt.Fprintf(h.w, "rlimsup warning: %s\n", r.Message)
		return err
	default:
		eventType := "event"
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == typeKey {
				eventType = a.Value.String()
				return false
			}
			return true
		})
		_, err := fmt.Fprintf(h.w, "[rlimsup] %s:%s%s\n", eventType, pad(eventType), r.Message)
		return err
	}
}

// pad reproduces the original's tab-stop padding: one tab every 8 columns
// up to tabColumn, then one more tab to separate type from message.
func pad(eventType string) string {
	var out []byte
	for n := len(eventType); n < tabColumn; n += 8 {
		out = append(out, '\t')
	}
	out = append(out, '\t')
	return string(out)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Event type attributes are read per-record in Handle; rlimsup never
	// needs a persistent attr chain, so every attr passed here is dropped.
	return h
}

func (h *handler) WithGroup(name string) slog.Handler { return h }
