package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adr-pipeline/internal/apperrors"
	"github.com/adr-pipeline/internal/models"
)

type countingStarter struct {
	calls int32
	err   error
}

func (c *countingStarter) StartCycle(ctx context.Context, requestedBy string) (*models.Run, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return &models.Run{RunID: "run-1"}, nil
}

func TestSchedulerFiresOnInterval(t *testing.T) {
	starter := &countingStarter{}
	s := New(10*time.Millisecond, starter, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	calls := atomic.LoadInt32(&starter.calls)
	assert.GreaterOrEqual(t, calls, int32(3))
}

func TestSchedulerToleratesConflicts(t *testing.T) {
	starter := &countingStarter{err: apperrors.NewRunConflictError("run-1")}
	s := New(5*time.Millisecond, starter, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// Must keep ticking despite every call conflicting
	s.Run(ctx)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&starter.calls), int32(2))
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	starter := &countingStarter{}
	s := New(time.Hour, starter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&starter.calls))
}
