package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	b, err := NewFileBackend(path)
	require.NoError(t, err)

	data, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data, "a missing file is an empty state")

	require.NoError(t, b.Save(ctx, []byte(`{"sessions":[]}`)))
	require.NoError(t, b.Save(ctx, []byte(`{"sessions":[],"activeSessionId":"x"}`)))

	data, err = b.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessions":[],"activeSessionId":"x"}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")

	_, err = NewFileBackend("")
	assert.Error(t, err)
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	b, err := NewSQLiteBackend(ctx, path, "vibepilot-state")
	require.NoError(t, err)

	data, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save(ctx, []byte(`{"sessions":[{"id":"1"}]}`)))
	require.NoError(t, b.Save(ctx, []byte(`{"sessions":[{"id":"2"}]}`)))
	data, err = b.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessions":[{"id":"2"}]}`, string(data))
	require.NoError(t, b.Close())

	// A different key in the same file is an independent state.
	other, err := NewSQLiteBackend(ctx, path, "other")
	require.NoError(t, err)
	defer other.Close()
	data, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	backend, err := NewBackend(ctx, config.StoreConfig{Backend: config.StoreSQLite, Path: path, StateKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	s := New(backend, zap.NewNop())
	require.NoError(t, s.Load(ctx))
	sess, err := s.Create(schemas.NewSession{Name: "persisted", Platform: schemas.PlatformVercel})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	backend, err = NewBackend(ctx, config.StoreConfig{Backend: config.StoreSQLite, Path: path, StateKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	reopened := New(backend, zap.NewNop())
	defer reopened.Close(ctx)
	require.NoError(t, reopened.Load(ctx))

	got, err := reopened.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, schemas.PlatformVercel, got.Platform)
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend(context.Background(), config.StoreConfig{Backend: "etcd"}, zap.NewNop())
	assert.Error(t, err)

	b, err := NewBackend(context.Background(), config.StoreConfig{Backend: config.StoreMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)
}
