// Package safego provides panic-recovering helpers for background and
// best-effort work.
package safego

import (
	"fmt"
	"log/slog"
)

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged rather than crashing the process. Use it for all fire-and-forget
// goroutines (schema bootstrap, shippers, websocket pumps).
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}

// BestEffort runs fn synchronously as a non-fatal side effect: an error or a
// panic is logged under op and swallowed. It reports whether fn succeeded so
// callers can count failures without handling them.
func BestEffort(op string, fn func() error, attrs ...any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in best-effort operation",
				append([]any{"op", op, "panic", fmt.Sprint(r)}, attrs...)...)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		slog.Warn("best-effort operation failed",
			append([]any{"op", op, "error", err}, attrs...)...)
		return false
	}
	return true
}
