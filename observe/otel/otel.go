package otel

import (
	"context"
	"time"

	"github.com/mkraev/taskscope/scope"
	"github.com/mkraev/taskscope/task"
)

// Nop is a no-op implementation of the scope.Observer interface.
// It serves as a placeholder for an OpenTelemetry-backed observer without adding dependencies.
type Nop struct{}

var _ scope.Observer = (*Nop)(nil)

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) ScopeEntered(context.Context)                                      {}
func (*Nop) ScopeAborted(context.Context, error)                               {}
func (*Nop) ScopeExited(context.Context, error, time.Duration)                 {}
func (*Nop) TaskSpawned(context.Context, string)                               {}
func (*Nop) TaskFinished(context.Context, string, task.Outcome, time.Duration) {}
