package engine

import (
	"log/slog"
	"runtime/debug"
)

// goSafe runs fn in a goroutine and logs a recovered panic instead of
// crashing the process.
func goSafe(logger *slog.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in background task",
					"task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
