package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

const fallbackNameRunes = 30

// Start resumes a Paused or Error session. It is refused while a risky action
// waits for the user or is still executing. A session whose plan ran out while
// it was paused is completed instead.
func (c *Controller) Start(id string) error {
	sess, err := c.openSession(id)
	if err != nil {
		return err
	}
	if c.pending(id) != nil {
		return ErrConfirmationPending
	}
	if c.confirming(id) {
		return ErrConfirmedActionRunning
	}
	switch sess.Status {
	case schemas.StatusRunning:
		return nil
	case schemas.StatusPaused, schemas.StatusError:
	default:
		return fmt.Errorf("%w: cannot start a %s session", ErrInvalidTransition, sess.Status)
	}

	if planExhausted(sess) {
		if !c.complete(id, schemas.StatusPaused, schemas.StatusError) {
			return fmt.Errorf("%w: session status changed", ErrInvalidTransition)
		}
		return nil
	}

	if _, ok := c.transition(id, schemas.StatusRunning, schemas.StatusPaused, schemas.StatusError); !ok {
		return fmt.Errorf("%w: session status changed", ErrInvalidTransition)
	}
	c.logInfo(id, "Agent started by user.")
	c.schedule(id)
	return nil
}

// Pause stops a Running session after its current tick. The in-flight tick
// is not interrupted but cannot move the session out of Paused.
func (c *Controller) Pause(id string) error {
	sess, err := c.openSession(id)
	if err != nil {
		return err
	}
	switch sess.Status {
	case schemas.StatusPaused:
		return nil
	case schemas.StatusRunning:
	default:
		return fmt.Errorf("%w: cannot pause a %s session", ErrInvalidTransition, sess.Status)
	}

	if _, ok := c.transition(id, schemas.StatusPaused, schemas.StatusRunning); !ok {
		return fmt.Errorf("%w: session status changed", ErrInvalidTransition)
	}
	c.unschedule(id)
	c.logInfo(id, "Agent paused by user.")
	return nil
}

// Stop ends a Running session, or a Paused one waiting on or executing a
// confirmed action, by moving it to Error. A pending confirmation is
// discarded; an executing one finishes but does not resume the session.
func (c *Controller) Stop(id string) error {
	sess, err := c.openSession(id)
	if err != nil {
		return err
	}
	p := c.pending(id)
	gated := p != nil || c.confirming(id)
	if sess.Status != schemas.StatusRunning && !(sess.Status == schemas.StatusPaused && gated) {
		return fmt.Errorf("%w: cannot stop a %s session", ErrInvalidTransition, sess.Status)
	}

	c.unschedule(id)
	if p != nil && p.discard() {
		c.clearPending(id, p)
		c.logInfo(id, fmt.Sprintf("Discarded pending action: %s.", p.Action.Name()))
		c.bus.Publish(Event{Type: EventConfirmationResolved, SessionID: id, Payload: ResolutionPayload{Action: p.Action.Name()}})
	}
	if _, ok := c.transition(id, schemas.StatusError, schemas.StatusRunning, schemas.StatusPaused); !ok {
		return fmt.Errorf("%w: session status changed", ErrInvalidTransition)
	}
	c.logInfo(id, "Agent stopped by user.")
	return nil
}

// SendMessage records a user message. The first message of an empty session
// becomes its goal and names it; later messages extend the goal. Messages to
// one session are handled one at a time.
func (c *Controller) SendMessage(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if _, err := c.openSession(id); err != nil {
		return err
	}
	unlock := c.lockMessages(id)
	defer unlock()

	sess, err := c.store.Get(id)
	if err != nil {
		return err
	}
	first := len(sess.Logs) == 0

	if _, err := c.appendLog(id, schemas.LogInput{Type: schemas.LogUser, Message: text}); err != nil {
		return err
	}

	if first {
		name := c.chatName(ctx, id, text)
		if _, err := c.update(id, schemas.SessionPatch{
			Name:   schemas.StringPtr(name),
			Goal:   schemas.StringPtr(text),
			Status: schemas.StatusPtr(schemas.StatusRunning),
		}); err != nil {
			return err
		}
		c.logInfo(id, "Goal set. The agent will now start working towards it.")
		c.schedule(id)
		return nil
	}

	goal := text
	if sess.Goal != "" {
		goal = sess.Goal + "\n\nAdditional instruction: " + text
	}
	if _, err := c.store.Update(id, schemas.SessionPatch{Goal: schemas.StringPtr(goal)}); err != nil {
		return err
	}
	if c.pending(id) != nil || c.confirming(id) {
		return nil
	}
	if _, ok := c.transition(id, schemas.StatusRunning,
		schemas.StatusPaused, schemas.StatusError, schemas.StatusCompleted); ok {
		c.logInfo(id, "Agent activated by new instruction.")
		c.schedule(id)
	}
	return nil
}

func (c *Controller) lockMessages(id string) func() {
	c.mu.Lock()
	st := c.stateLocked(id)
	c.mu.Unlock()
	st.messages.Lock()
	return st.messages.Unlock
}

// chatName asks the namer for a title. Naming never fails a message.
func (c *Controller) chatName(ctx context.Context, id, message string) string {
	if c.namer != nil {
		name, err := c.namer.NameChat(ctx, message)
		if err == nil && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
		c.logger.Warn("Chat naming failed, using message prefix.", zap.String("session_id", id), zap.Error(err))
	}
	return fallbackName(message)
}

func fallbackName(message string) string {
	runes := []rune(message)
	if len(runes) <= fallbackNameRunes {
		return message
	}
	return string(runes[:fallbackNameRunes]) + "..."
}

// Confirm executes the action waiting behind the gate of session id.
func (c *Controller) Confirm(ctx context.Context, id string) error {
	if _, err := c.openSession(id); err != nil {
		return err
	}
	p := c.pending(id)
	if p == nil {
		return ErrNoPendingConfirmation
	}
	return p.Confirm(ctx)
}

// Cancel discards the action waiting behind the gate. The session stays
// Paused.
func (c *Controller) Cancel(id string) error {
	if _, err := c.openSession(id); err != nil {
		return err
	}
	p := c.pending(id)
	if p == nil {
		return ErrNoPendingConfirmation
	}
	return p.Cancel()
}

// Pending returns the confirmation waiting on session id, if any.
func (c *Controller) Pending(id string) (ConfirmationView, bool) {
	p := c.pending(id)
	if p == nil {
		return ConfirmationView{}, false
	}
	return p.view(), true
}

func (c *Controller) openSession(id string) (schemas.Session, error) {
	if err := c.checkOpen(); err != nil {
		return schemas.Session{}, err
	}
	return c.store.Get(id)
}
