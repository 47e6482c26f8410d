// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics using the local scope implementation. It enables incremental
// migration without rewriting call sites around scopes and tasks.
package errgroup

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mkraev/taskscope/scope"
	"github.com/mkraev/taskscope/task"
)

type token struct{}

// Group is an errgroup-like wrapper over a fail-fast scope. The scope lives
// inside a hidden root task that parks until Wait seals the group, so Go can
// be called from any goroutine in between.
type Group struct {
	root   *task.Task
	s      *scope.Scope
	cancel context.CancelCauseFunc

	sealed chan struct{}
	seal   sync.Once
	waited atomic.Bool

	sem chan token

	errOnce sync.Once
	err     error
}

// WithContext creates a Group bound to ctx. The returned context is canceled
// the first time a function passed to Go returns a non-nil error, the first
// time Wait returns, or when ctx itself is canceled, whichever comes first.
func WithContext(ctx context.Context) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	gctx, cancel := context.WithCancelCause(ctx)
	g := &Group{cancel: cancel, sealed: make(chan struct{})}

	ready := make(chan struct{})
	g.root = task.Spawn(gctx, "errgroup", func(tctx context.Context) (any, error) {
		return nil, scope.Run(tctx, func(bctx context.Context, s *scope.Scope) error {
			g.s = s
			close(ready)
			select {
			case <-g.sealed:
				return nil
			case <-bctx.Done():
				return bctx.Err()
			}
		}, scope.WithDelegate(scope.DelegateFunc(g.report)))
	})
	// Spawned tasks do not inherit cancellation, so forward it explicitly:
	// cancelling ctx cancels the root task, which aborts the group.
	go func() {
		select {
		case <-gctx.Done():
			g.root.Cancel(context.Cause(gctx))
		case <-g.root.Done():
		}
	}()
	<-ready
	return g, gctx
}

// report is the group's error delegate: the first failure is kept for Wait
// and cancels the group context.
func (g *Group) report(_ *task.Task, err error, _ *scope.Scope) {
	g.errOnce.Do(func() {
		g.err = err
		g.cancel(err)
	})
}

// Go starts f in its own task. The first f to return a non-nil error wins
// Wait; the rest of the group is cancelled. When a limit is set, Go blocks
// until a slot frees. Go must not be called after Wait.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	if g.waited.Load() {
		panic("errgroup: Go called after Wait")
	}
	if g.sem != nil {
		g.sem <- token{}
	}
	if _, err := g.s.Spawn("", func(ctx context.Context) (any, error) {
		defer g.release()
		return nil, f()
	}); err != nil {
		g.release()
		panic("errgroup: Go called after Wait")
	}
}

// TryGo starts f only if the limit allows it right now, reporting whether it
// did.
func (g *Group) TryGo(f func() error) bool {
	if f == nil {
		return false
	}
	if g.waited.Load() {
		panic("errgroup: TryGo called after Wait")
	}
	if g.sem != nil {
		select {
		case g.sem <- token{}:
		default:
			return false
		}
	}
	if _, err := g.s.Spawn("", func(ctx context.Context) (any, error) {
		defer g.release()
		return nil, f()
	}); err != nil {
		g.release()
		panic("errgroup: TryGo called after Wait")
	}
	return true
}

func (g *Group) release() {
	if g.sem != nil {
		<-g.sem
	}
}

// SetLimit bounds the number of functions running at once; further Go calls
// block until one finishes. A negative n removes the limit. It must not be
// called while functions are active.
func (g *Group) SetLimit(n int) {
	if n < 0 {
		g.sem = nil
		return
	}
	if len(g.sem) != 0 {
		panic("errgroup: SetLimit called while functions are still active")
	}
	g.sem = make(chan token, n)
}

// Wait blocks until all functions have returned. It returns the first
// non-nil error from them; with no such error but the parent context
// cancelled, context.Canceled.
func (g *Group) Wait() error {
	g.waited.Store(true)
	g.seal.Do(func() { close(g.sealed) })
	_, rootErr := g.root.Result()
	if g.err != nil {
		g.cancel(g.err)
		return g.err
	}
	g.cancel(context.Canceled)
	switch {
	case rootErr == nil:
		return nil
	case task.IsCancellation(rootErr):
		return context.Canceled
	default:
		return rootErr
	}
}
