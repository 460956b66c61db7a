package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// slowBackend records saves and holds each one for a while so that mutations
// pile up behind an in-flight flush.
type slowBackend struct {
	MemoryBackend
	delay      time.Duration
	inFlight   atomic.Int32
	maxOverlap atomic.Int32
	failNext   atomic.Bool
}

func (b *slowBackend) Save(ctx context.Context, data []byte) error {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		old := b.maxOverlap.Load()
		if n <= old || b.maxOverlap.CompareAndSwap(old, n) {
			break
		}
	}
	if b.failNext.CompareAndSwap(true, false) {
		return errors.New("disk full")
	}
	time.Sleep(b.delay)
	return b.MemoryBackend.Save(ctx, data)
}

// waitTimeout waits for the condition to become true, or fails the test.
func waitTimeout(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPersister_LastWriteWins(t *testing.T) {
	backend := &slowBackend{delay: 20 * time.Millisecond}
	s := newTestStore(t, backend)
	require.NoError(t, s.Load(context.Background()))
	id := s.ActiveID()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendLog(id, schemas.LogInput{Type: schemas.LogInfo, Message: "tick"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	final, err := s.Update(id, schemas.SessionPatch{Name: schemas.StringPtr("final")})
	require.NoError(t, err)

	waitTimeout(t, 3*time.Second, func() bool {
		data, _ := backend.Load(context.Background())
		if len(data) == 0 {
			return false
		}
		state, err := decodeState(data)
		if err != nil || len(state.Sessions) != 1 {
			return false
		}
		return state.Sessions[0].Name == "final" && len(state.Sessions[0].Logs) == 50
	})

	assert.Less(t, backend.Saves(), 52, "signals are coalesced")
	assert.Equal(t, int32(1), backend.maxOverlap.Load(), "flushes never overlap")

	data, _ := backend.Load(context.Background())
	state, err := decodeState(data)
	require.NoError(t, err)
	assert.True(t, state.Sessions[0].LastUpdated.Equal(final.LastUpdated))
}

func TestPersister_FailedFlushIsRetriedByNextMutation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	backend := &slowBackend{}
	s := New(backend, zap.New(core))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	backend.failNext.Store(true)
	require.NoError(t, s.Load(context.Background()))

	waitTimeout(t, 2*time.Second, func() bool {
		return logs.FilterMessage("Background state flush failed").Len() == 1
	})

	_, err := s.Create(schemas.NewSession{Name: "after failure"})
	require.NoError(t, err)
	waitTimeout(t, 2*time.Second, func() bool { return backend.Saves() >= 1 })
}

func TestStore_CloseFlushesAndIsIdempotent(t *testing.T) {
	backend := NewMemoryBackend()
	core, _ := observer.New(zap.DebugLevel)
	s := New(backend, zap.New(core))
	require.NoError(t, s.Load(context.Background()))
	_, err := s.Create(schemas.NewSession{Name: "last"})
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	data, err := backend.Load(context.Background())
	require.NoError(t, err)
	state, err := decodeState(data)
	require.NoError(t, err)
	require.Len(t, state.Sessions, 2)
	assert.Equal(t, "last", state.Sessions[0].Name)
}
