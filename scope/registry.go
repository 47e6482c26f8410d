package scope

import (
	"context"
	"time"

	"github.com/mkraev/taskscope/task"
)

// registry is the leaf layer of a scope: the live-child set and the
// bookkeeping fed by completion observers. It shares the scope's mutex;
// observers run on child goroutines, so every field access goes through
// that lock.
type registry struct {
	live map[*task.Task]struct{}

	// emptied is the pending completion-wait signal, recreated by the
	// drain loop each time it is consumed and closed by the observer that
	// empties the live set.
	emptied chan struct{}

	// errs holds one TaskError per failed child under FailFast, in the
	// order the failures were observed.
	errs []error

	// baseErr is the single fatal-error slot, first write wins.
	baseErr error
}

// Spawn starts fn as a child of the scope and registers it in the live
// set. It fails with ErrNotEntered before Enter and with ErrFinished once
// the scope is draining with nothing left to rendezvous with, or has
// terminated; a child of a draining scope may still spawn siblings while
// it runs. The returned handle is the same one task.Spawn produces, so
// callers can join or inspect the child independently.
func (s *Scope) Spawn(name string, fn task.Func) (*task.Task, error) {
	s.mu.Lock()
	switch {
	case s.state == stateNotEntered:
		s.mu.Unlock()
		return nil, ErrNotEntered
	case s.state == stateTerminated,
		s.state == stateExiting && len(s.reg.live) == 0:
		s.mu.Unlock()
		return nil, ErrFinished
	}
	body := fn
	if s.sem != nil {
		sem := s.sem
		inner := fn
		body = func(ctx context.Context) (any, error) {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer sem.Release(1)
			return inner(ctx)
		}
	}
	t := task.Spawn(s.bctx, name, body)
	s.reg.live[t] = struct{}{}
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.TaskSpawned(s.bctx, t.Name())
	}
	start := s.clk.Now()
	t.OnDone(func(done *task.Task) { s.onTaskDone(done, start) })
	return t, nil
}

// onTaskDone is the completion observer attached to every child. It runs
// exactly once per child, on the child's goroutine (or inline on the
// spawner's if the child finished before registration). A failure is
// reported to the delegate first and escalated only after the report
// returns, and the child stays in the live set until the very end, so the
// drain loop cannot move past a failure whose processing is still in
// flight.
func (s *Scope) onTaskDone(t *task.Task, start time.Time) {
	err := t.Err()
	outcome := t.Outcome()
	failed := err != nil && outcome != task.OutcomeCancelled

	var escalate bool
	s.mu.Lock()
	// With the parent already finished there is nothing left to escalate
	// to; the delegate report below is all that happens.
	if failed && !s.parent.Finished() {
		fatal := IsFatal(err)
		if fatal && s.reg.baseErr == nil {
			s.reg.baseErr = err
		}
		if fatal || s.policy == FailFast {
			if !fatal {
				s.reg.errs = append(s.reg.errs, &TaskError{Task: t.Name(), Err: err})
			}
			escalate = true
		}
	}
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.TaskFinished(s.bctx, t.Name(), outcome, s.clk.Since(start))
	}
	if failed {
		// Report before reacting: the delegate observes the scope as the
		// failing task left it, with no sibling cancelled on its account.
		s.delegate.deliver(t, err, s)
	}

	if escalate {
		var abortTasks []*task.Task
		s.mu.Lock()
		first := !s.aborting && !s.parentCancelRequested
		if first {
			s.parentCancelRequested = true
			s.aborting = true
			abortTasks = make([]*task.Task, 0, len(s.reg.live))
			for lt := range s.reg.live {
				abortTasks = append(abortTasks, lt)
			}
		}
		s.mu.Unlock()

		if first {
			if s.obs != nil {
				s.obs.ScopeAborted(s.bctx, ErrAborted)
			}
			for _, lt := range abortTasks {
				lt.Cancel(ErrAborted)
			}
			s.parent.Cancel(ErrAborted)
		}
	}

	s.mu.Lock()
	delete(s.reg.live, t)
	if len(s.reg.live) == 0 && s.reg.emptied != nil {
		close(s.reg.emptied)
		s.reg.emptied = nil
	}
	s.mu.Unlock()
}
