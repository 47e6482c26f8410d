package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkraev/taskscope/task"
)

// Misuse of the scope API is reported immediately at the call site with one
// of these sentinels, never deferred to Exit.
var (
	// ErrNotEntered is returned when a scope is used before Enter.
	ErrNotEntered = errors.New("taskscope: scope not entered")
	// ErrAlreadyEntered is returned when Enter is called twice; a scope is
	// single use.
	ErrAlreadyEntered = errors.New("taskscope: scope already entered")
	// ErrFinished is returned when spawning into a scope that is draining
	// with no live children left, or one that already terminated.
	ErrFinished = errors.New("taskscope: scope is finished")
	// ErrNoParentTask is returned by Enter when the context carries no task
	// to bind the scope to.
	ErrNoParentTask = errors.New("taskscope: no task in context")
)

// ErrAborted is the cancellation cause a scope uses when it cancels its
// children and, on escalation, its parent task. It tests true against
// context.Canceled so cancellation-aware code classifies it correctly.
var ErrAborted = fmt.Errorf("taskscope: scope aborted: %w", context.Canceled)

// TaskError attributes a child failure to the task that produced it.
// Aggregated scope errors are built from these, so callers can walk an
// exit error with AllTaskErrors or match causes with errors.Is.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// AllTaskErrors collects every TaskError reachable through err, walking
// both single wrapping and joined multi-errors, in recording order.
func AllTaskErrors(err error) []*TaskError {
	var out []*TaskError
	collectTaskErrors(err, &out)
	return out
}

func collectTaskErrors(err error, out *[]*TaskError) {
	if err == nil {
		return
	}
	if te, ok := err.(*TaskError); ok {
		*out = append(*out, te)
		return
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			collectTaskErrors(e, out)
		}
	case interface{ Unwrap() error }:
		collectTaskErrors(x.Unwrap(), out)
	}
}

// CauseOf strips a single layer of task attribution: if err carries a
// TaskError it returns the underlying cause, otherwise err unchanged.
func CauseOf(err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}
	return err
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return "fatal: " + e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as a process-level failure. A fatal error from a child
// or a scope body claims the scope's base-error slot and wins over every
// other exit outcome, including pending cancellations. Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err is fatal-class: marked with Fatal or carrying
// a recovered panic.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return true
	}
	var pe *task.PanicError
	return errors.As(err, &pe)
}
