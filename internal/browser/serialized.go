package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// Serialized funnels every call into one host through a single slot, so
// sessions sharing a tab never issue overlapping snapshot or action calls.
type Serialized struct {
	inner schemas.BrowserHost
	sem   *semaphore.Weighted
}

// NewSerialized wraps inner.
func NewSerialized(inner schemas.BrowserHost) *Serialized {
	return &Serialized{inner: inner, sem: semaphore.NewWeighted(1)}
}

func (s *Serialized) CaptureSnapshot(ctx context.Context) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for browser: %w", schemas.ErrSnapshotUnavailable, err)
	}
	defer s.sem.Release(1)
	return s.inner.CaptureSnapshot(ctx)
}

func (s *Serialized) Execute(ctx context.Context, action schemas.Action) (schemas.ExecResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		ae := schemas.NewActionError(schemas.ErrCodeActionExecutionFailed, action.Name(),
			fmt.Sprintf("Timed out waiting for the browser: %v", err), err)
		return schemas.FailedResult(ae), ae
	}
	defer s.sem.Release(1)

	start := time.Now()
	res, err := s.inner.Execute(ctx, action)
	res.Duration = time.Since(start)
	return res, err
}

func (s *Serialized) Close() error { return s.inner.Close() }
