// internal/agent/controller.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
	"github.com/xkilldash9x/vibepilot/internal/observability"
	"github.com/xkilldash9x/vibepilot/internal/store"
)

const (
	defaultTickTimeout = 3 * time.Minute
	defaultSummaryLogs = 50
)

// Dependencies are the collaborators of a Controller. Store, Host and
// Planner are required; a nil Namer falls back to prefix names, a nil
// Summarizer or ProjectPlanner disables those features.
type Dependencies struct {
	Store          SessionStore
	Host           schemas.BrowserHost
	Planner        Planner
	Namer          Namer
	Summarizer     Summarizer
	ProjectPlanner ProjectPlanner
	Bus            *EventBus
}

// sessionState is the process-local state of one session. inFlight covers a
// tick, confirming covers a confirmed action executing outside a tick. No tick
// starts while either is set.
type sessionState struct {
	timer      *time.Timer
	inFlight   bool
	confirming bool
	pending    *PendingConfirmation

	// messages serializes SendMessage.
	messages sync.Mutex
}

// Controller runs the agent loop for every session. Each session has at most
// one tick in flight; the next tick is armed only after the previous one has
// committed its final log entry and status.
type Controller struct {
	cfg      config.AgentConfig
	store    SessionStore
	host     schemas.BrowserHost
	planner  Planner
	namer    Namer
	summary  Summarizer
	projects ProjectPlanner
	bus      *EventBus
	policy   RiskPolicy
	limiter  *rate.Limiter
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*sessionState
	closed   bool
}

// NewController wires a controller. It does not start any tick; call Resume
// to pick up sessions that were Running when the process stopped.
func NewController(cfg config.AgentConfig, deps Dependencies, logger *zap.Logger) (*Controller, error) {
	if deps.Store == nil || deps.Host == nil || deps.Planner == nil {
		return nil, fmt.Errorf("agent controller requires a store, a browser host and a planner")
	}
	if deps.Bus == nil {
		deps.Bus = NewEventBus(logger, 0)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PlannerRate > 0 {
		burst := cfg.PlannerBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PlannerRate), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:      cfg,
		store:    deps.Store,
		host:     deps.Host,
		planner:  deps.Planner,
		namer:    deps.Namer,
		summary:  deps.Summarizer,
		projects: deps.ProjectPlanner,
		bus:      deps.Bus,
		policy:   RiskPolicy{ConfirmUnknown: cfg.ConfirmUnknownActions},
		limiter:  limiter,
		logger:   logger.Named("agent"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sessionState),
	}, nil
}

// Events returns the controller's event bus.
func (c *Controller) Events() *EventBus { return c.bus }

// Resume schedules a tick for every Running session and restarts planning
// for sessions that were interrupted while Planning.
func (c *Controller) Resume() {
	for _, sess := range c.store.List() {
		switch sess.Status {
		case schemas.StatusRunning:
			c.logger.Info("Resuming running session.", zap.String("session_id", sess.ID))
			c.schedule(sess.ID)
		case schemas.StatusPlanning:
			c.startPlanning(sess.ID)
		}
	}
}

// Close stops all timers, cancels in-flight work and waits for it to end.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, st := range c.sessions {
		c.stopTimerLocked(st)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.bus.Shutdown()
	return nil
}

// -- scheduling --

func (c *Controller) stateLocked(id string) *sessionState {
	st, ok := c.sessions[id]
	if !ok {
		st = &sessionState{}
		c.sessions[id] = st
	}
	return st
}

// schedule arms the cooldown timer for id unless one is already armed.
func (c *Controller) schedule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	st := c.stateLocked(id)
	if st.timer != nil {
		return
	}

	c.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(c.cfg.TickCooldown, func() {
		defer c.wg.Done()

		c.mu.Lock()
		if st.timer == timer {
			st.timer = nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.runScheduledTick(id)
	})
	st.timer = timer
}

func (c *Controller) runScheduledTick(id string) {
	timeout := c.cfg.TickTimeout
	if timeout <= 0 {
		timeout = defaultTickTimeout
	}
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	err := c.Tick(ctx, id)
	switch {
	case err == nil, errors.Is(err, ErrTickInFlight):
	case errors.Is(err, schemas.ErrSessionNotFound):
		c.logger.Debug("Session deleted before its tick ran.", zap.String("session_id", id))
	default:
		c.logger.Error("Tick failed.", zap.String("session_id", id), zap.Error(err))
	}
}

// stopTimerLocked disarms a pending timer, releasing its WaitGroup slot.
func (c *Controller) stopTimerLocked(st *sessionState) {
	if st.timer != nil && st.timer.Stop() {
		c.wg.Done()
	}
	st.timer = nil
}

func (c *Controller) unschedule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[id]; ok {
		c.stopTimerLocked(st)
	}
}

// -- pending confirmations --

func (c *Controller) pending(id string) *PendingConfirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[id]; ok {
		return st.pending
	}
	return nil
}

func (c *Controller) setPending(id string, p *PendingConfirmation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateLocked(id).pending = p
}

// confirming reports whether a confirmed action is executing for id.
func (c *Controller) confirming(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[id]
	return ok && st.confirming
}

// beginConfirmed swaps the pending confirmation p for the confirming flag in
// one step so nothing can start a tick in between.
func (c *Controller) beginConfirmed(id string, p *PendingConfirmation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(id)
	if st.pending == p {
		st.pending = nil
	}
	st.confirming = true
}

func (c *Controller) endConfirmed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[id]; ok {
		st.confirming = false
	}
}

// clearPending removes p if it is still the session's pending confirmation.
func (c *Controller) clearPending(id string, p *PendingConfirmation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[id]; ok && st.pending == p {
		st.pending = nil
	}
}

// -- store helpers that publish events --

func (c *Controller) appendLog(id string, in schemas.LogInput) (schemas.LogEntry, error) {
	entry, err := c.store.AppendLog(id, in)
	if err != nil {
		if errors.Is(err, schemas.ErrSessionNotFound) {
			c.logger.Debug("Dropping log entry for deleted session.", zap.String("session_id", id), zap.String("message", in.Message))
		}
		return entry, err
	}
	c.bus.Publish(Event{Type: EventLogAppended, SessionID: id, Payload: entry})
	return entry, nil
}

func (c *Controller) logInfo(id, msg string) {
	_, _ = c.appendLog(id, schemas.LogInput{Type: schemas.LogInfo, Message: msg})
}

func (c *Controller) logError(id, msg string) {
	observability.ForSession(c.logger, id).Warn("Agent error.", zap.String("message", msg))
	_, _ = c.appendLog(id, schemas.LogInput{Type: schemas.LogError, Message: msg})
}

// update applies patch and publishes a status event when the status moved.
func (c *Controller) update(id string, patch schemas.SessionPatch) (schemas.Session, error) {
	sess, err := c.store.Update(id, patch)
	if err != nil {
		return sess, err
	}
	if patch.Status != nil || patch.IncrementStep || patch.TotalSteps != nil {
		c.bus.Publish(Event{Type: EventStatusChanged, SessionID: id, Payload: StatusPayload{
			Status:      sess.Status,
			CurrentStep: sess.CurrentStep,
			TotalSteps:  sess.TotalSteps,
		}})
	}
	return sess, nil
}

// transition moves the session to status if it is currently in one of from.
// A conflict means the user changed the status meanwhile; it is not an error
// for the caller.
func (c *Controller) transition(id string, status schemas.SessionStatus, from ...schemas.SessionStatus) (schemas.Session, bool) {
	sess, err := c.update(id, schemas.SessionPatch{Status: schemas.StatusPtr(status), IfStatus: from})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) && !errors.Is(err, schemas.ErrSessionNotFound) {
			c.logger.Error("Failed to update session status.", zap.String("session_id", id), zap.Error(err))
		}
		c.logger.Debug("Status transition skipped.",
			zap.String("session_id", id),
			zap.String("to", string(status)),
			zap.Error(err))
		return sess, false
	}
	return sess, true
}
