package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey struct{}

func TestDispatcher_RunsDetachedFromRequestContext(t *testing.T) {
	d := NewDispatcher(4, time.Second, discardLogger())

	reqCtx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))
	release := make(chan struct{})
	var sawValue atomic.Value
	var sawErr atomic.Value

	ok := d.Go(reqCtx, "test", func(ctx context.Context) error {
		<-release
		sawValue.Store(ctx.Value(ctxKey{}))
		sawErr.Store(ctx.Err() == nil)
		return nil
	})
	require.True(t, ok)

	cancel()
	close(release)
	d.Wait()

	assert.Equal(t, "req-1", sawValue.Load())
	assert.Equal(t, true, sawErr.Load(), "request cancellation must not cancel the task")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, time.Second, discardLogger())
	release := make(chan struct{})

	require.True(t, d.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	}))
	assert.False(t, d.Go(context.Background(), "dropped", func(context.Context) error { return nil }))

	close(release)
	d.Wait()

	assert.True(t, d.Go(context.Background(), "after", func(context.Context) error { return nil }))
	d.Wait()
}

func TestDispatcher_LimitCountsOnlyRunningTasks(t *testing.T) {
	d := NewDispatcher(2, time.Second, discardLogger())
	release := make(chan struct{})
	var ran atomic.Int32

	for i := 0; i < 2; i++ {
		require.True(t, d.Go(context.Background(), "slow", func(context.Context) error {
			<-release
			ran.Add(1)
			return nil
		}))
	}
	assert.False(t, d.Go(context.Background(), "third", func(context.Context) error { return nil }))

	close(release)
	d.Wait()
	assert.Equal(t, int32(2), ran.Load())
}

func TestDispatcher_ErrorsAndPanicsAreContained(t *testing.T) {
	d := NewDispatcher(2, time.Second, discardLogger())

	d.Go(context.Background(), "err", func(context.Context) error { return errors.New("boom") })
	d.Go(context.Background(), "panic", func(context.Context) error { panic("kaboom") })

	assert.NotPanics(t, d.Wait)
	assert.True(t, d.Go(context.Background(), "after", func(context.Context) error { return nil }),
		"a failed task must not poison later scheduling")
	d.Wait()
}

func TestDispatcher_TaskTimeout(t *testing.T) {
	d := NewDispatcher(1, 20*time.Millisecond, discardLogger())
	var deadlineHit atomic.Bool

	d.Go(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			deadlineHit.Store(true)
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})
	d.Wait()

	assert.True(t, deadlineHit.Load())
}
