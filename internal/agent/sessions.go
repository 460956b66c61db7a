package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// NewChat creates an empty Paused session and makes it active.
func (c *Controller) NewChat(platform schemas.Platform) (schemas.Session, error) {
	if err := c.checkOpen(); err != nil {
		return schemas.Session{}, err
	}
	sess, err := c.store.Create(schemas.NewSession{Platform: platform, Status: schemas.StatusPaused})
	if err != nil {
		return schemas.Session{}, err
	}
	c.bus.Publish(Event{Type: EventSessionCreated, SessionID: sess.ID, Payload: sess})
	c.activate(sess.ID)
	return sess, nil
}

// CreateProject creates a session for goal on platform and plans it in the
// background. The session stays in Planning until the plan is logged. Without
// a project planner the session starts Paused with its goal set.
func (c *Controller) CreateProject(name, goal string, platform schemas.Platform) (schemas.Session, error) {
	if err := c.checkOpen(); err != nil {
		return schemas.Session{}, err
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return schemas.Session{}, fmt.Errorf("%w: a project needs a goal", ErrEmptyMessage)
	}
	if !platform.Valid() {
		return schemas.Session{}, fmt.Errorf("unknown platform %q", platform)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackName(goal)
	}

	status := schemas.StatusPlanning
	if c.projects == nil {
		status = schemas.StatusPaused
	}
	sess, err := c.store.Create(schemas.NewSession{Name: name, Goal: goal, Platform: platform, Status: status})
	if err != nil {
		return schemas.Session{}, err
	}
	c.bus.Publish(Event{Type: EventSessionCreated, SessionID: sess.ID, Payload: sess})
	c.logInfo(sess.ID, fmt.Sprintf("Project %q created.", name))
	c.activate(sess.ID)

	if status == schemas.StatusPlanning {
		c.startPlanning(sess.ID)
	}
	return sess, nil
}

// startPlanning asks the project planner for steps in the background.
func (c *Controller) startPlanning(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Recovered from panic in project planning.",
					zap.String("session_id", id),
					zap.Any("panic_value", r),
					zap.Stack("stack"))
				c.logError(id, fmt.Sprintf("Project planning failed: internal error: %v", r))
				c.transition(id, schemas.StatusError, schemas.StatusPlanning)
			}
		}()
		c.plan(id)
	}()
}

func (c *Controller) plan(id string) {
	sess, err := c.store.Get(id)
	if err != nil || sess.Status != schemas.StatusPlanning {
		return
	}
	if c.projects == nil {
		c.transition(id, schemas.StatusPaused, schemas.StatusPlanning)
		return
	}

	timeout := c.cfg.TickTimeout
	if timeout <= 0 {
		timeout = defaultTickTimeout
	}
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	// The page gives the planner context but a plan does not need it.
	dom, err := c.host.CaptureSnapshot(ctx)
	if err != nil {
		c.logger.Debug("Planning without a page snapshot.", zap.String("session_id", id), zap.Error(err))
		dom = ""
	}

	var steps []string
	if err = c.limiter.Wait(ctx); err == nil {
		steps, err = c.projects.PlanProject(ctx, ProjectPlanInput{
			Platform:    sess.Platform,
			Goal:        sess.Goal,
			DOMSnapshot: dom,
		})
	}
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logError(id, fmt.Sprintf("Project planning failed: %v", err))
		c.transition(id, schemas.StatusError, schemas.StatusPlanning)
		return
	}

	for i, step := range steps {
		if _, err := c.appendLog(id, schemas.LogInput{
			Type:    schemas.LogPlan,
			Message: fmt.Sprintf("Step %d: %s", i+1, step),
		}); err != nil {
			return
		}
	}
	if _, err := c.store.Update(id, schemas.SessionPatch{
		TotalSteps: schemas.IntPtr(len(steps)),
		IfStatus:   []schemas.SessionStatus{schemas.StatusPlanning},
	}); err != nil {
		c.logger.Debug("Plan not applied.", zap.String("session_id", id), zap.Error(err))
		return
	}
	c.transition(id, schemas.StatusPaused, schemas.StatusPlanning)
	c.logger.Info("Project planned.", zap.String("session_id", id), zap.Int("steps", len(steps)))
}

// Select makes id the active session.
func (c *Controller) Select(id string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.store.SetActive(id); err != nil {
		return err
	}
	c.bus.Publish(Event{Type: EventActiveChanged, SessionID: id})
	return nil
}

// Delete removes a session, cancelling its timer and any pending
// confirmation. It returns the id of the active session afterwards.
func (c *Controller) Delete(id string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	c.mu.Lock()
	var pending *PendingConfirmation
	if st, ok := c.sessions[id]; ok {
		c.stopTimerLocked(st)
		pending = st.pending
		st.pending = nil
	}
	c.mu.Unlock()
	if pending != nil {
		pending.discard()
	}

	active, err := c.store.Delete(id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if st, ok := c.sessions[id]; ok && !st.inFlight && !st.confirming {
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	c.bus.Publish(Event{Type: EventSessionDeleted, SessionID: id})
	c.bus.Publish(Event{Type: EventActiveChanged, SessionID: active})
	return active, nil
}

// Session returns a copy of session id.
func (c *Controller) Session(id string) (schemas.Session, error) { return c.store.Get(id) }

// Sessions lists every session.
func (c *Controller) Sessions() []schemas.Session { return c.store.List() }

// ActiveID returns the selected session id.
func (c *Controller) ActiveID() string { return c.store.ActiveID() }

// Summarize condenses the most recent log entries of a session into one
// sentence.
func (c *Controller) Summarize(ctx context.Context, id string) (string, error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return "", err
	}
	if len(sess.Logs) == 0 {
		return "No activity yet.", nil
	}
	if c.summary == nil {
		return "", errors.New("log summaries are not configured")
	}

	limit := c.cfg.SummaryLogLimit
	if limit <= 0 {
		limit = defaultSummaryLogs
	}
	logs := sess.Logs
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return c.summary.Summarize(ctx, FormatLogs(logs))
}

// FormatLogs renders entries one per line as they are shown to the
// summarizer and the CLI.
func FormatLogs(logs []schemas.LogEntry) string {
	var sb strings.Builder
	for _, entry := range logs {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", entry.Timestamp.Format(time.TimeOnly), strings.ToUpper(string(entry.Type)), entry.Message)
	}
	return sb.String()
}

func (c *Controller) activate(id string) {
	if err := c.store.SetActive(id); err != nil {
		c.logger.Warn("Failed to activate session.", zap.String("session_id", id), zap.Error(err))
		return
	}
	c.bus.Publish(Event{Type: EventActiveChanged, SessionID: id})
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	return nil
}
