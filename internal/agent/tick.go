package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/observability"
)

// Tick runs one decision cycle for a Running session: snapshot, plan, then
// either wait, execute, or stop at the confirmation gate. A session that is
// not Running is left untouched. Tick returns ErrTickInFlight when another
// tick for the same session has not finished.
func (c *Controller) Tick(ctx context.Context, id string) (err error) {
	if err := c.beginTick(id); err != nil {
		return err
	}
	defer c.endTick(id)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in agent tick.",
				zap.String("session_id", id),
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			c.logError(id, fmt.Sprintf("Agent failed: internal error: %v", r))
			c.transition(id, schemas.StatusError, schemas.StatusRunning)
			err = fmt.Errorf("panic during tick: %v", r)
		}
	}()

	sess, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if sess.Status != schemas.StatusRunning {
		return nil
	}
	log := observability.ForSession(c.logger, id)

	c.logInfo(id, "Agent is thinking...")
	c.logInfo(id, "Capturing page content...")
	dom, err := c.host.CaptureSnapshot(ctx)
	if err != nil {
		return c.failTick(ctx, id, fmt.Sprintf("Agent failed: %v", err), err)
	}
	c.logInfo(id, "Page content captured. Analyzing...")

	if err := c.limiter.Wait(ctx); err != nil {
		return c.failTick(ctx, id, fmt.Sprintf("Agent failed: %v", err), err)
	}
	decision, err := c.planner.NextAction(ctx, PlannerInput{
		DOMSnapshot:  dom,
		ProjectGoals: sess.Goal,
		Platform:     sess.Platform,
		UserID:       c.cfg.UserID,
		ProjectID:    sess.ID,
	})
	if err != nil {
		return c.failTick(ctx, id, fmt.Sprintf("Agent failed: %v", err), err)
	}
	if decision.Action == nil {
		decision.Action = schemas.NoAction{}
	}

	// The user may have paused or stopped while the planner was thinking.
	current, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if current.Status != schemas.StatusRunning {
		log.Info("Discarding proposal, session left Running during planning.",
			zap.String("action", decision.Action.Name()),
			zap.String("status", string(current.Status)))
		return nil
	}

	action := decision.Action
	name := action.Name()
	switch {
	case name == schemas.ActionNone:
		_, _ = c.appendLog(id, schemas.LogInput{Type: schemas.LogAction, Message: decisionText(decision)})
		c.transition(id, schemas.StatusPaused, schemas.StatusRunning)
		return nil

	case c.policy.Classify(name) == RiskRequiresConfirmation:
		c.requestConfirmation(id, decision)
		return nil
	}

	_, _ = c.appendLog(id, schemas.LogInput{
		Type:    schemas.LogAction,
		Message: fmt.Sprintf("Next Action: %s", name),
		Details: actionDetails(action, decision.Reasoning),
	})
	if err := c.execute(ctx, id, action); err != nil {
		log.Warn("Action execution failed.", zap.String("action", name), zap.Error(err))
		return c.failTick(ctx, id, fmt.Sprintf("Execution failed: %v", err), err)
	}
	c.advance(id, schemas.StatusRunning)
	return nil
}

func (c *Controller) beginTick(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	st := c.stateLocked(id)
	if st.inFlight || st.confirming {
		return ErrTickInFlight
	}
	st.inFlight = true
	return nil
}

// endTick clears the in-flight flag and arms the next tick if the session is
// still Running with nothing awaiting confirmation. The status is read under
// the lock so a tick armed elsewhere meanwhile never finds the flag set.
func (c *Controller) endTick(id string) {
	c.mu.Lock()
	sess, err := c.store.Get(id)
	st, ok := c.sessions[id]
	if ok {
		st.inFlight = false
	}
	again := ok && err == nil &&
		sess.Status == schemas.StatusRunning &&
		st.pending == nil &&
		!st.confirming &&
		!c.closed
	c.mu.Unlock()

	if again {
		c.schedule(id)
	}
}

// failTick records a tick failure. Failures caused by the controller
// shutting down leave the session Running so it resumes on the next start.
func (c *Controller) failTick(ctx context.Context, id, message string, cause error) error {
	if c.ctx.Err() != nil {
		c.logger.Debug("Tick interrupted by shutdown.", zap.String("session_id", id), zap.Error(cause))
		return nil
	}
	c.logError(id, message)
	c.transition(id, schemas.StatusError, schemas.StatusRunning)
	if ctx.Err() != nil {
		return fmt.Errorf("tick timed out: %w", cause)
	}
	return nil
}

// execute runs action on the host. A non-success result without an error is
// turned into one.
func (c *Controller) execute(ctx context.Context, id string, action schemas.Action) error {
	c.logInfo(id, fmt.Sprintf("Executing action: %s", action.Name()))
	res, err := c.host.Execute(ctx, action)
	if err != nil {
		return err
	}
	if res.Status != schemas.ExecSuccess {
		code := res.ErrorCode
		if code == "" {
			code = schemas.ErrCodeActionExecutionFailed
		}
		msg := res.Error
		if msg == "" {
			msg = fmt.Sprintf("Execution of %s failed.", action.Name())
		}
		return schemas.NewActionError(code, action.Name(), msg, nil)
	}
	c.logInfo(id, fmt.Sprintf("Action %q executed successfully.", action.Name()))
	return nil
}

// advance counts a successful action and completes the session when the
// plan is exhausted. A session without a plan has no step limit. It reports
// whether the session was completed.
func (c *Controller) advance(id string, from ...schemas.SessionStatus) bool {
	sess, err := c.update(id, schemas.SessionPatch{IncrementStep: true})
	if err != nil {
		if !errors.Is(err, schemas.ErrSessionNotFound) {
			c.logger.Error("Failed to advance step.", zap.String("session_id", id), zap.Error(err))
		}
		return false
	}
	if planExhausted(sess) {
		return c.complete(id, from...)
	}
	return false
}

func planExhausted(sess schemas.Session) bool {
	return sess.TotalSteps > 0 && sess.CurrentStep >= sess.TotalSteps
}

func (c *Controller) complete(id string, from ...schemas.SessionStatus) bool {
	if _, ok := c.transition(id, schemas.StatusCompleted, from...); ok {
		c.logInfo(id, "Project automation completed.")
		return true
	}
	return false
}

// requestConfirmation parks a risky proposal behind the gate.
func (c *Controller) requestConfirmation(id string, d Decision) {
	name := d.Action.Name()
	if _, ok := c.transition(id, schemas.StatusPaused, schemas.StatusRunning); !ok {
		return
	}
	entry, err := c.appendLog(id, schemas.LogInput{
		Type:    schemas.LogConfirmation,
		Message: fmt.Sprintf("Awaiting confirmation for risky action: %s", name),
		Details: actionDetails(d.Action, d.Reasoning),
	})
	if err != nil {
		return
	}

	p := &PendingConfirmation{
		SessionID: id,
		Entry:     entry,
		Action:    d.Action,
		Reasoning: d.Reasoning,
		CreatedAt: entry.Timestamp,
	}
	p.onConfirm = func(ctx context.Context) error { return c.runConfirmed(ctx, p) }
	p.onCancel = func() error { return c.runCancelled(p) }

	c.setPending(id, p)
	c.bus.Publish(Event{Type: EventConfirmationRequested, SessionID: id, Payload: p.view()})
	observability.ForSession(c.logger, id).Info("Risky action awaiting confirmation.", zap.String("action", name))
}

// runConfirmed executes a confirmed action. The session stays Paused and
// marked confirming until the step is counted, so no tick and no Start can
// interleave with it.
func (c *Controller) runConfirmed(ctx context.Context, p *PendingConfirmation) error {
	id, name := p.SessionID, p.Action.Name()
	c.beginConfirmed(id, p)
	resumed := false
	defer func() {
		c.endConfirmed(id)
		if resumed {
			c.schedule(id)
		}
	}()
	c.bus.Publish(Event{Type: EventConfirmationResolved, SessionID: id, Payload: ResolutionPayload{Action: name, Confirmed: true}})

	_, _ = c.appendLog(id, schemas.LogInput{
		Type:    schemas.LogAction,
		Message: fmt.Sprintf("User confirmed action: %s. Executing...", name),
		Details: actionDetails(p.Action, p.Reasoning),
	})

	timeout := c.cfg.TickTimeout
	if timeout <= 0 {
		timeout = defaultTickTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.execute(ctx, id, p.Action); err != nil {
		c.logError(id, fmt.Sprintf("Execution failed: %v", err))
		c.transition(id, schemas.StatusError, schemas.StatusPaused)
		return fmt.Errorf("confirmed action %s: %w", name, err)
	}

	if c.advance(id, schemas.StatusPaused) {
		return nil
	}
	_, resumed = c.transition(id, schemas.StatusRunning, schemas.StatusPaused)
	return nil
}

func (c *Controller) runCancelled(p *PendingConfirmation) error {
	id, name := p.SessionID, p.Action.Name()
	c.clearPending(id, p)
	c.logInfo(id, fmt.Sprintf("User cancelled action: %s.", name))
	c.bus.Publish(Event{Type: EventConfirmationResolved, SessionID: id, Payload: ResolutionPayload{Action: name}})
	return nil
}

func actionDetails(a schemas.Action, reasoning string) *schemas.LogDetails {
	return &schemas.LogDetails{Action: a.Name(), Reasoning: reasoning, Params: a.Params()}
}

// decisionText is what the user sees when the planner decides to wait.
func decisionText(d Decision) string {
	if d.Response != "" {
		return d.Response
	}
	if d.Reasoning != "" {
		return d.Reasoning
	}
	return "No action needed right now."
}
