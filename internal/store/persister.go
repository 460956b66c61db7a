package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSaveTimeout = 10 * time.Second

// persister coalesces mutation signals into background saves. The dirty
// channel holds at most one pending signal, and every save serializes the
// state current at save time, so the last write always wins and no flush
// ever writes stale data over newer data.
type persister struct {
	backend     Backend
	snapshot    func() ([]byte, error)
	log         *zap.Logger
	saveTimeout time.Duration

	dirty    chan struct{}
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	// saveMu serializes saves from the background loop and from Flush.
	saveMu sync.Mutex
}

func newPersister(backend Backend, snapshot func() ([]byte, error), logger *zap.Logger) *persister {
	return &persister{
		backend:     backend,
		snapshot:    snapshot,
		log:         logger.Named("persister"),
		saveTimeout: defaultSaveTimeout,
		dirty:       make(chan struct{}, 1),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
	}
}

func (p *persister) start() {
	go p.run()
}

// markDirty requests a save without blocking.
func (p *persister) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.done:
			return
		case <-p.dirty:
			ctx, cancel := context.WithTimeout(context.Background(), p.saveTimeout)
			if err := p.flush(ctx); err != nil {
				p.log.Error("Background state flush failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// flush captures and saves the latest state.
func (p *persister) flush(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	data, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := p.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// stop ends the loop and performs a final synchronous flush.
func (p *persister) stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.done)
		<-p.finished
		err = p.flush(ctx)
	})
	return err
}
