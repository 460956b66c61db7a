package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// overlapHost records how many calls are inside it at once.
type overlapHost struct {
	delay   time.Duration
	current atomic.Int32
	max     atomic.Int32
	calls   atomic.Int32
}

func (h *overlapHost) enter() func() {
	n := h.current.Add(1)
	h.calls.Add(1)
	for {
		old := h.max.Load()
		if n <= old || h.max.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(h.delay)
	return func() { h.current.Add(-1) }
}

func (h *overlapHost) CaptureSnapshot(context.Context) (string, error) {
	defer h.enter()()
	return "<body></body>", nil
}

func (h *overlapHost) Execute(_ context.Context, a schemas.Action) (schemas.ExecResult, error) {
	defer h.enter()()
	return schemas.ExecResult{Status: schemas.ExecSuccess, Message: a.Name()}, nil
}

func (h *overlapHost) Close() error { return nil }

func TestSerialized_NoOverlap(t *testing.T) {
	inner := &overlapHost{delay: 5 * time.Millisecond}
	s := NewSerialized(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.CaptureSnapshot(ctx)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			res, err := s.Execute(ctx, schemas.ClickAction{Selector: "#x"})
			assert.NoError(t, err)
			assert.Greater(t, res.Duration, time.Duration(0))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), inner.calls.Load())
	assert.Equal(t, int32(1), inner.max.Load())
}

func TestSerialized_WaitHonorsContext(t *testing.T) {
	inner := &overlapHost{delay: 200 * time.Millisecond}
	s := NewSerialized(inner)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, _ = s.CaptureSnapshot(context.Background())
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.CaptureSnapshot(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrSnapshotUnavailable)

	res, err := s.Execute(ctx, schemas.ClickAction{Selector: "#x"})
	assert.ErrorIs(t, err, schemas.ErrActionExecutionFailed)
	assert.Equal(t, schemas.ExecError, res.Status)

	<-done
}
