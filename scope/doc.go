// Package scope provides structured-concurrency task scopes: a scope owns
// the tasks spawned into it, guarantees they all reach a terminal state
// before the scope's block completes, and propagates cancellation and
// errors across the group with a fixed priority order.
//
// The usual entry point is Run, which binds a scope to the calling task
// (creating a root task when there is none), runs the block, and performs
// the exit protocol:
//
//	err := scope.Run(ctx, func(ctx context.Context, s *scope.Scope) error {
//		s.Spawn("fetch-a", fetchA)
//		s.Spawn("fetch-b", fetchB)
//		return nil // Exit waits for both children
//	})
//
// Under the default FailFast policy the first child failure aborts the
// group, cancels the block, and surfaces from Run; several failures are
// joined, each attributed with a TaskError. The Supervisor policy instead
// reports child failures to the scope's Delegate and keeps the group
// running.
//
// Cancellation of the parent task cancels every child. A scope that
// cancelled its own parent while escalating a failure retracts exactly
// that cancellation on exit, so an externally requested one is never
// masked and a self-inflicted one never leaks.
package scope
