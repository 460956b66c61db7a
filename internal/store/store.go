package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

const defaultSessionName = "New Chat"

var (
	// ErrStatusConflict is returned by Update when the patch carries an
	// expected status that no longer holds.
	ErrStatusConflict = errors.New("session status changed concurrently")
	// ErrAlreadyLoaded is returned when Load is called a second time.
	ErrAlreadyLoaded = errors.New("session store already loaded")
)

// Store is the single writer of session state. It keeps everything in memory,
// hands out deep copies, and schedules a background flush after every
// mutation.
type Store struct {
	mu       sync.RWMutex
	sessions []*schemas.Session // most recently created first
	index    map[string]*schemas.Session
	activeID string
	loaded   bool

	backend         Backend
	persister       *persister
	log             *zap.Logger
	now             func() time.Time
	newID           func() string
	defaultPlatform schemas.Platform
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the time source. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithDefaultPlatform sets the platform used for sessions created without one.
func WithDefaultPlatform(p schemas.Platform) Option {
	return func(s *Store) { s.defaultPlatform = p }
}

// WithFlushTimeout bounds each background save.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Store) { s.persister.saveTimeout = d }
}

// New creates a store backed by backend and starts its flusher. Call Close to
// stop it.
func New(backend Backend, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		index:           make(map[string]*schemas.Session),
		backend:         backend,
		log:             logger.Named("store"),
		now:             time.Now,
		newID:           uuid.NewString,
		defaultPlatform: schemas.PlatformFirebase,
	}
	s.persister = newPersister(backend, s.encodeSnapshot, s.log)
	for _, opt := range opts {
		opt(s)
	}
	s.persister.start()
	return s
}

// Load rehydrates state from the backend. It may only be called once. An
// empty backend yields a single default session, which becomes active.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return ErrAlreadyLoaded
	}

	data, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session state: %w", err)
	}
	s.loaded = true

	if len(data) > 0 {
		state, err := decodeState(data)
		if err != nil {
			return fmt.Errorf("failed to decode session state: %w", err)
		}
		for i := range state.Sessions {
			sess := state.Sessions[i]
			if sess.ID == "" {
				continue
			}
			if sess.Logs == nil {
				sess.Logs = []schemas.LogEntry{}
			}
			if _, dup := s.index[sess.ID]; dup {
				continue
			}
			s.sessions = append(s.sessions, &sess)
			s.index[sess.ID] = &sess
		}
		if _, ok := s.index[state.ActiveSessionID]; ok {
			s.activeID = state.ActiveSessionID
		}
	}

	if len(s.sessions) == 0 {
		s.insertLocked(schemas.NewSession{})
		s.persister.markDirty()
	}
	if s.activeID == "" {
		s.activeID = s.sessions[0].ID
	}

	s.log.Info("Session state loaded",
		zap.Int("sessions", len(s.sessions)),
		zap.String("active_session_id", s.activeID))
	return nil
}

// Create allocates a new session. Without an explicit status it starts in
// Planning when a goal is given and Paused otherwise. The first session ever
// created also becomes the active one.
func (s *Store) Create(in schemas.NewSession) (schemas.Session, error) {
	if in.Platform != "" && !in.Platform.Valid() {
		return schemas.Session{}, fmt.Errorf("unsupported platform %q", in.Platform)
	}

	s.mu.Lock()
	sess := s.insertLocked(in)
	if s.activeID == "" {
		s.activeID = sess.ID
	}
	out := sess.Clone()
	s.mu.Unlock()

	s.persister.markDirty()
	s.log.Debug("Session created", zap.String("session_id", out.ID), zap.String("status", string(out.Status)))
	return out, nil
}

func (s *Store) insertLocked(in schemas.NewSession) *schemas.Session {
	status := in.Status
	if status == "" {
		status = schemas.StatusPaused
		if in.Goal != "" {
			status = schemas.StatusPlanning
		}
	}
	platform := in.Platform
	if platform == "" {
		platform = s.defaultPlatform
	}
	name := in.Name
	if name == "" {
		name = defaultSessionName
	}

	sess := &schemas.Session{
		ID:          s.newID(),
		Name:        name,
		Goal:        in.Goal,
		Platform:    platform,
		Status:      status,
		Logs:        []schemas.LogEntry{},
		LastUpdated: s.timestamp(time.Time{}),
	}
	s.sessions = slices.Insert(s.sessions, 0, sess)
	s.index[sess.ID] = sess
	return sess
}

// Get returns a copy of one session.
func (s *Store) Get(id string) (schemas.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.index[id]
	if !ok {
		return schemas.Session{}, fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

// List returns copies of every session, most recently created first.
func (s *Store) List() []schemas.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schemas.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// AppendLog assigns an id and timestamp to entry and appends it. Entries are
// never edited or removed afterwards.
func (s *Store) AppendLog(id string, entry schemas.LogInput) (schemas.LogEntry, error) {
	s.mu.Lock()
	sess, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return schemas.LogEntry{}, fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}

	ts := s.timestamp(sess.LastUpdated)
	logEntry := schemas.LogEntry{
		ID:        s.newID(),
		Timestamp: ts,
		Type:      entry.Type,
		Message:   entry.Message,
		Details:   entry.Details,
	}
	logEntry = logEntry.Clone()
	sess.Logs = append(sess.Logs, logEntry)
	sess.LastUpdated = ts
	out := logEntry.Clone()
	s.mu.Unlock()

	s.persister.markDirty()
	return out, nil
}

// Update applies a shallow merge and bumps lastUpdated. A non-empty
// patch.IfStatus turns the update into a compare-and-set on the status.
func (s *Store) Update(id string, patch schemas.SessionPatch) (schemas.Session, error) {
	if patch.Status != nil && *patch.Status == "" {
		return schemas.Session{}, fmt.Errorf("empty status in patch")
	}

	s.mu.Lock()
	sess, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return schemas.Session{}, fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}
	if len(patch.IfStatus) > 0 && !slices.Contains(patch.IfStatus, sess.Status) {
		current := sess.Status
		s.mu.Unlock()
		return schemas.Session{}, fmt.Errorf("%w: session %s is %s", ErrStatusConflict, id, current)
	}

	if patch.Name != nil {
		sess.Name = *patch.Name
	}
	if patch.Goal != nil {
		sess.Goal = *patch.Goal
	}
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.TotalSteps != nil {
		sess.TotalSteps = *patch.TotalSteps
	}
	if patch.CurrentStep != nil {
		sess.CurrentStep = *patch.CurrentStep
	}
	if patch.IncrementStep {
		sess.CurrentStep++
	}
	sess.LastUpdated = s.timestamp(sess.LastUpdated)
	out := sess.Clone()
	s.mu.Unlock()

	s.persister.markDirty()
	return out, nil
}

// Delete removes a whole session. When it was active, the first remaining
// session becomes active, or a fresh default session is created if none
// remain. It returns the id of the active session after the delete.
func (s *Store) Delete(id string) (string, error) {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}

	delete(s.index, id)
	s.sessions = slices.DeleteFunc(s.sessions, func(sess *schemas.Session) bool { return sess.ID == id })

	if s.activeID == id {
		if len(s.sessions) == 0 {
			s.insertLocked(schemas.NewSession{})
		}
		s.activeID = s.sessions[0].ID
	}
	active := s.activeID
	s.mu.Unlock()

	s.persister.markDirty()
	s.log.Info("Session deleted", zap.String("session_id", id), zap.String("active_session_id", active))
	return active, nil
}

// ActiveID returns the id of the selected session, or "" before Load.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the selected session.
func (s *Store) Active() (schemas.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.index[s.activeID]
	if !ok {
		return schemas.Session{}, schemas.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// SetActive selects a session.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}
	s.activeID = id
	s.mu.Unlock()

	s.persister.markDirty()
	return nil
}

// Flush writes the current state synchronously.
func (s *Store) Flush(ctx context.Context) error {
	return s.persister.flush(ctx)
}

// Close stops the background flusher, writes a final snapshot and closes the
// backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.persister.stop(ctx)
	closeErr := s.backend.Close()
	return errors.Join(flushErr, closeErr)
}

// encodeSnapshot serializes the state as it is at the moment of the call.
func (s *Store) encodeSnapshot() ([]byte, error) {
	s.mu.RLock()
	state := schemas.State{
		Sessions:        make([]schemas.Session, len(s.sessions)),
		ActiveSessionID: s.activeID,
	}
	for i, sess := range s.sessions {
		state.Sessions[i] = sess.Clone()
	}
	s.mu.RUnlock()
	return encodeState(state)
}

// timestamp returns the current time at millisecond precision, strictly
// after prev.
func (s *Store) timestamp(prev time.Time) time.Time {
	ts := s.now().UTC().Truncate(time.Millisecond)
	if !ts.After(prev) {
		ts = prev.Add(time.Millisecond)
	}
	return ts
}
