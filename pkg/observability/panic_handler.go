package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the panic value and
// full stack trace. Call it in a defer. The panic is not re-raised, so the
// surrounding goroutine keeps the process alive.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
