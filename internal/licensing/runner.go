package licensing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/logging"
)

// DefaultTaskTimeout bounds a single best-effort task.
const DefaultTaskTimeout = 10 * time.Second

// Runner executes best-effort work outside the request that produced it.
// A failing or panicking task is logged and otherwise ignored.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner returns a Runner.  A non-positive timeout selects
// DefaultTaskTimeout.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go starts fn in its own goroutine with a fresh context, detached from
// the caller's cancellation.
func (r *Runner) Go(name string, fields []zap.Field, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.run(ctx, fn); err != nil {
			r.logger.Warn("side effect failed",
				append([]zap.Field{zap.String(logging.FieldTask, name), zap.Error(err)}, fields...)...)
		}
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() { r.wg.Wait() }
