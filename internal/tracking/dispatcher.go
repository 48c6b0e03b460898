package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/attaboy/tracking/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs fire-and-forget work after a response has been prepared.
// Tasks get a context detached from the request (values kept, cancellation
// dropped) bounded by a timeout. At most maxInFlight tasks run at once; when
// full, new tasks are dropped and logged. Errors and panics are logged only.
type Dispatcher struct {
	group   errgroup.Group
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(maxInFlight int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{timeout: timeout, logger: logger}
	d.group.SetLimit(maxInFlight)
	return d
}

// Go schedules fn and returns immediately. It reports false when the task was dropped.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	detached := context.WithoutCancel(ctx)
	started := d.group.TryGo(func() error {
		taskCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.run(taskCtx, name, fn); err != nil {
			metrics.BackgroundTasks.WithLabelValues(name, "error").Inc()
			d.logger.Error("background task failed", "task", name, "error", err)
			return nil
		}
		metrics.BackgroundTasks.WithLabelValues(name, "ok").Inc()
		return nil
	})
	if !started {
		metrics.BackgroundTasks.WithLabelValues(name, "dropped").Inc()
		d.logger.Warn("background task dropped, dispatcher full", "task", name)
	}
	return started
}

// run calls fn, turning a panic into an error so one task cannot take down the process.
func (d *Dispatcher) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("background task panicked", "task", name, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task has finished. Task errors are
// already logged, so nothing is returned.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}
