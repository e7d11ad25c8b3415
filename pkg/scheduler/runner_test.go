package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(nil)
	_, err := r.Add("pipeline", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule pipeline")
	assert.Equal(t, 0, r.Entries())
}

func TestRunnerRunsJobEverySecond(t *testing.T) {
	r := New(nil)
	var runs int32
	_, err := r.Add("tick", "* * * * * *", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("logged, not fatal")
	})
	require.NoError(t, err)

	r.Start()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestStopCancelsRunningJob(t *testing.T) {
	r := New(nil)
	started := make(chan struct{})
	_, err := r.Add("long", "* * * * * *", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	r.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}
