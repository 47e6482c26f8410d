package scope

import (
	"log/slog"
	"sync/atomic"

	"github.com/mkraev/taskscope/task"
)

// Handler receives a child task's error for advisory reporting. It runs on
// the goroutine of the task that failed, before the failure escalates, so
// the handler observes the scope as the failing task left it. Panics inside
// a handler are not recovered by the scope.
type Handler func(t *task.Task, err error, s *Scope)

type delegateKind int8

const (
	delegateDefault delegateKind = iota
	delegateSuppress
	delegateFunc
)

// Delegate selects how a scope reports child errors locally, before any
// escalation. It is one of three fixed variants chosen at construction:
// the process-wide default handler, suppression, or a caller-supplied
// Handler. The zero value is DelegateDefault.
type Delegate struct {
	kind delegateKind
	fn   Handler
}

// DelegateDefault routes child errors to the process-wide default handler,
// which logs through slog unless replaced with SetDefaultHandler.
func DelegateDefault() Delegate { return Delegate{kind: delegateDefault} }

// DelegateSuppress drops child error reports.
func DelegateSuppress() Delegate { return Delegate{kind: delegateSuppress} }

// DelegateFunc reports child errors to fn. A nil fn behaves like
// DelegateSuppress.
func DelegateFunc(fn Handler) Delegate {
	if fn == nil {
		return Delegate{kind: delegateSuppress}
	}
	return Delegate{kind: delegateFunc, fn: fn}
}

func (d Delegate) deliver(t *task.Task, err error, s *Scope) {
	switch d.kind {
	case delegateSuppress:
	case delegateFunc:
		d.fn(t, err, s)
	default:
		(*defaultHandler.Load())(t, err, s)
	}
}

var defaultHandler atomic.Pointer[Handler]

func init() {
	h := Handler(logHandler)
	defaultHandler.Store(&h)
}

// SetDefaultHandler replaces the process-wide handler used by
// DelegateDefault scopes. Passing nil restores the initial slog-based
// handler. Safe for concurrent use.
func SetDefaultHandler(fn Handler) {
	if fn == nil {
		fn = logHandler
	}
	defaultHandler.Store(&fn)
}

func logHandler(t *task.Task, err error, s *Scope) {
	slog.Error("unhandled task error in scope",
		"task", t.Name(),
		"state", s.State(),
		"err", err,
	)
}
