package scope

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/mkraev/taskscope/task"
)

type state int8

const (
	stateNotEntered state = iota
	stateEntered
	stateExiting
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateNotEntered:
		return "not-entered"
	case stateEntered:
		return "entered"
	case stateExiting:
		return "exiting"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Scope owns a group of child tasks: children cannot outlive it, Exit
// returns only after every child reached a terminal state, and failures
// propagate across the group according to the configured Policy. A scope
// is bound to the task that enters it and is not reusable.
type Scope struct {
	policy   Policy
	delegate Delegate
	obs      Observer
	clk      clockwork.Clock
	sem      *semaphore.Weighted

	// Set once at Enter.
	parent *task.Task
	bctx   context.Context
	outer  *Scope

	mu    sync.Mutex
	state state
	reg   registry

	// aborting is latched by the first group-wide abort.
	aborting bool

	// parentCancelRequested records that this scope cancelled its own
	// parent while escalating a child failure, so Exit can retract that
	// one cancellation instead of mistaking it for an external one.
	parentCancelRequested bool
}

// New creates a scope. It must be entered with Enter (or driven by Run)
// before tasks can be spawned into it.
func New(opts ...Option) *Scope {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	s := &Scope{
		policy:   o.Policy,
		delegate: o.Delegate,
		obs:      o.Observer,
		clk:      o.Clock,
	}
	if o.MaxConcurrency > 0 {
		s.sem = semaphore.NewWeighted(o.MaxConcurrency)
	}
	s.reg.live = make(map[*task.Task]struct{})
	return s
}

// Enter binds the scope to the task found in ctx and returns the block
// context: ctx extended with the scope association that FromContext reads.
// It fails with ErrNoParentTask when ctx carries no task and with
// ErrAlreadyEntered on reuse. The task that enters a scope must be the one
// that calls Exit.
func (s *Scope) Enter(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent := task.Current(ctx)
	if parent == nil {
		return nil, ErrNoParentTask
	}
	s.mu.Lock()
	if s.state != stateNotEntered {
		s.mu.Unlock()
		return nil, ErrAlreadyEntered
	}
	s.state = stateEntered
	s.parent = parent
	s.outer, _ = ctx.Value(scopeKey{}).(*Scope)
	s.bctx = context.WithValue(ctx, scopeKey{}, s)
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.ScopeEntered(s.bctx)
	}
	return s.bctx, nil
}

// Exit runs the scope's termination protocol and must be called exactly
// once, by the entering task, with the block's own outcome: nil, an
// ordinary error, or a cancellation error (typically ctx.Err()). It aborts
// the group when the block failed, waits for every child to finish while
// absorbing repeated cancellation of the wait itself, and returns the one
// outcome that wins: a fatal error first; then the block's and children's
// ordinary errors, joined when there are several; then any pending
// cancellation; else nil.
func (s *Scope) Exit(blockErr error) error {
	s.mu.Lock()
	switch s.state {
	case stateNotEntered:
		s.mu.Unlock()
		return ErrNotEntered
	case stateExiting, stateTerminated:
		s.mu.Unlock()
		return ErrFinished
	}
	s.state = stateExiting

	var claimedBase bool
	if blockErr != nil && IsFatal(blockErr) && s.reg.baseErr == nil {
		s.reg.baseErr = blockErr
		claimedBase = true
	}
	var propagate error
	if task.IsCancellation(blockErr) {
		propagate = blockErr
	}
	s.mu.Unlock()

	if blockErr != nil {
		s.abort(ErrAborted)
	}

	drainStart := s.clk.Now()
	for {
		s.mu.Lock()
		if len(s.reg.live) == 0 {
			s.mu.Unlock()
			break
		}
		sig := make(chan struct{})
		s.reg.emptied = sig
		aborting := s.aborting
		s.mu.Unlock()

		if aborting {
			<-sig
			continue
		}
		// The wait itself may be cancelled, possibly more than once.
		// The first one that arrives while the group is not already
		// aborting is a fresh external cancellation: remember it and
		// abort, then keep draining.
		pctx := s.parent.Context()
		select {
		case <-sig:
		case <-pctx.Done():
			// A self-escalation racing the snapshot above lands here
			// too; the retraction after the drain corrects for it.
			cause := context.Cause(pctx)
			if cause == nil {
				cause = pctx.Err()
			}
			propagate = cause
			s.abort(ErrAborted)
		}
	}
	drain := s.clk.Since(drainStart)

	s.mu.Lock()
	requested := s.parentCancelRequested
	s.mu.Unlock()
	// Retract a self-requested parent cancellation. Escalation always
	// finishes before the escalating child leaves the live set, so with
	// the drain complete the matching Cancel has landed and exactly one
	// Uncancel balances it. When the counter drops to zero nothing
	// externally meaningful remains, so the tentative cancellation is
	// dropped too.
	if requested {
		if s.parent.Uncancel() == 0 {
			propagate = nil
		}
	}

	s.mu.Lock()
	baseErr := s.reg.baseErr
	all := s.reg.errs
	s.reg.errs = nil
	if blockErr != nil && !task.IsCancellation(blockErr) && !claimedBase {
		all = append(all, blockErr)
	}

	var final error
	switch {
	case baseErr != nil:
		final = baseErr
	case propagate != nil && len(all) == 0:
		final = propagate
	case len(all) == 1:
		final = all[0]
	case len(all) > 1:
		final = errors.Join(all...)
	}
	s.state = stateTerminated
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.ScopeExited(s.bctx, final, drain)
	}
	return final
}

// Abort cancels every live child that has not already finished. It is
// idempotent and safe to call from any goroutine; Exit still must run to
// collect the children.
func (s *Scope) Abort() {
	s.abort(ErrAborted)
}

func (s *Scope) abort(cause error) {
	s.mu.Lock()
	first := !s.aborting
	s.aborting = true
	tasks := make([]*task.Task, 0, len(s.reg.live))
	for t := range s.reg.live {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	if first && s.obs != nil {
		s.obs.ScopeAborted(s.bctx, cause)
	}
	for _, t := range tasks {
		t.Cancel(cause)
	}
}

// Run composes New, Enter, fn, and Exit. The block receives the scope and
// its block context; a panic in the block is captured and treated as a
// fatal outcome. When ctx carries no task, Run first bootstraps a root
// task around itself, so it works at the top of a program as well as
// inside one.
func Run(ctx context.Context, fn func(ctx context.Context, s *Scope) error, opts ...Option) error {
	if task.Current(ctx) == nil {
		_, err := task.Run(ctx, "", func(ctx context.Context) (any, error) {
			return nil, Run(ctx, fn, opts...)
		})
		return err
	}
	s := New(opts...)
	bctx, err := s.Enter(ctx)
	if err != nil {
		return err
	}
	return s.Exit(runBlock(bctx, s, fn))
}

func runBlock(ctx context.Context, s *Scope, fn func(context.Context, *Scope) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = task.Recovered(r)
		}
	}()
	return fn(ctx, s)
}

// Context returns the block context established by Enter, or nil before
// entry. Note that after a cancellation absorbed by an inner scope renewed
// the parent task's context, this snapshot stays cancelled; live code
// re-derives through task.Current(ctx).Context().
func (s *Scope) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bctx
}

// Parent returns the task that entered the scope, or nil before entry.
func (s *Scope) Parent() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parent
}

// Live returns the number of children that have not finished.
func (s *Scope) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reg.live)
}

// Aborting reports whether group-wide abort has been triggered.
func (s *Scope) Aborting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborting
}

// State returns the scope's lifecycle state as a string, one of
// "not-entered", "entered", "exiting", "terminated".
func (s *Scope) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

func (s *Scope) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateTerminated
}
