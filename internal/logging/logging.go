// Package logging configures the structured log sink shared by every
// component, rendering each event as spec.md §6's required line format:
//
//	YYYY-MM-DD HH:MM:SS.mmm --- [<thread-name>] : <message>
//
// Built on github.com/rs/zerolog — the logging library
// always-cache-always-cache imports directly for the same structured,
// one-line-per-event purpose — rather than stdlib log, so every
// component logs through leveled, field-carrying zerolog events instead
// of bare Printf strings. The rendered line holds only the timestamp,
// the thread field and the message; the level and all other fields are
// not written.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// threadField is the bound field substituting for the C source's
// pthread_setname_np thread names — Go goroutines have no OS-level name,
// so the logical role (main, accept, worker) is carried
// as a logger field instead and rendered into the bracketed slot.
const threadField = "thread"

// lineWriter renders each zerolog JSON event into spec.md's single log
// line. zerolog's built-in ConsoleWriter formats its own opinionated
// layout; since spec.md's layout is fixed at the byte level, a small
// custom io.Writer consuming the same JSON event stream reproduces it
// exactly without leaving the zerolog ecosystem.
type lineWriter struct {
	out io.Writer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	var evt map[string]any
	if err := json.Unmarshal(p, &evt); err != nil {
		// zerolog always emits valid JSON; a failure here means the
		// writer is misconfigured. The event is dropped without output.
		return len(p), nil
	}

	ts := time.Now()
	if raw, ok := evt[zerolog.TimestampFieldName].(string); ok {
		if parsed, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			ts = parsed
		}
	}

	thread, _ := evt[threadField].(string)
	if thread == "" {
		thread = "main"
	}

	msg, _ := evt[zerolog.MessageFieldName].(string)
	// Mirrors the C source's log.c stripping embedded newlines/carriage
	// returns so a malformed request line can't forge extra log lines.
	msg = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, msg)

	_, err := fmt.Fprintf(w.out, "%s --- [%15s] : %s\n",
		ts.Format("2006-01-02 15:04:05.000"), thread, msg)
	return len(p), err
}

// New returns a base Logger writing spec.md's line format to out. Each
// component derives its own named logger with
// base.With().Str("thread", name).Logger(), the same pattern
// always-cache-always-cache uses for its per-request zerolog/hlog
// logger (there keyed by request, here by logical thread role).
func New(out io.Writer) zerolog.Logger {
	return zerolog.New(&lineWriter{out: out}).With().Timestamp().Logger()
}

// Named is a convenience for the common case of wanting a thread-tagged
// child logger in one call.
func Named(base zerolog.Logger, thread string) zerolog.Logger {
	return base.With().Str(threadField, thread).Logger()
}
