package scope

import (
	"context"
	"time"

	"github.com/mkraev/taskscope/task"
)

// Observer receives scope lifecycle events. Implementations must be safe
// for concurrent use; task events fire on the goroutines of the tasks
// themselves. The observe/prom and observe/otel packages provide ready
// implementations.
type Observer interface {
	ScopeEntered(ctx context.Context)
	ScopeAborted(ctx context.Context, cause error)
	ScopeExited(ctx context.Context, err error, drain time.Duration)
	TaskSpawned(ctx context.Context, name string)
	TaskFinished(ctx context.Context, name string, outcome task.Outcome, dur time.Duration)
}
