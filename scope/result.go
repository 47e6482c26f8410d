package scope

import (
	"context"

	"github.com/mkraev/taskscope/task"
)

// Result is a typed view over a child task spawned with SpawnResult.
type Result[T any] struct {
	t *task.Task
}

// Task returns the underlying task handle.
func (r *Result[T]) Task() *task.Task { return r.t }

// Join waits for the child and returns its typed value. It returns ctx's
// error if ctx ends first; the child keeps running in that case and
// remains owned by its scope.
func (r *Result[T]) Join(ctx context.Context) (T, error) {
	var zero T
	if err := r.t.Join(ctx); err != nil {
		return zero, err
	}
	v, err := r.t.Result()
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// SpawnResult spawns fn into s like Scope.Spawn, preserving the result
// type for the caller.
func SpawnResult[T any](s *Scope, name string, fn func(ctx context.Context) (T, error)) (*Result[T], error) {
	t, err := s.Spawn(name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Result[T]{t: t}, nil
}
