package task

import (
	"fmt"
	"runtime"
)

// PanicError carries a panic recovered from a task body, together with the
// stack of the panicking goroutine. Scopes treat it as fatal rather than
// as an ordinary task failure.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the formatted stack trace captured at recovery.
	Stack []byte
}

// Recovered wraps a value obtained from recover, capturing the current
// goroutine's stack. Use it in deferred handlers that convert panics into
// task outcomes.
func Recovered(value any) *PanicError {
	buf := make([]byte, 8<<10)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: value, Stack: buf[:n]}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v\n%s", e.Value, e.Stack)
}
