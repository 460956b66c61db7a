package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend stores the serialized state blob. Load returns (nil, nil) when
// nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

func encodeState(state schemas.State) ([]byte, error) {
	return json.Marshal(state)
}

func decodeState(data []byte) (*schemas.State, error) {
	var state schemas.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// NewBackend opens the backend selected by cfg.
func NewBackend(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return NewMemoryBackend(), nil
	case config.StoreFile:
		b, err := NewFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.StoreSQLite:
		b, err := NewSQLiteBackend(ctx, cfg.Path, cfg.StateKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.StorePostgres:
		pool, err := OpenPostgresPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		b, err := NewPostgresBackend(ctx, pool, cfg.StateKey, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// -- In-memory --

// MemoryBackend keeps the last saved blob in memory.
type MemoryBackend struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryBackend) Close() error { return nil }

// -- File --

// FileBackend writes the blob to a single JSON file, replacing it atomically.
type FileBackend struct {
	path string
}

// NewFileBackend creates the parent directory of path if needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("file backend requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

func (f *FileBackend) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }
