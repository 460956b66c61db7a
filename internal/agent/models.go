package agent

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// PlannerInput is what the planner sees on every tick.
type PlannerInput struct {
	DOMSnapshot  string           `json:"domSnapshot"`
	ProjectGoals string           `json:"projectGoals"`
	Platform     schemas.Platform `json:"platform"`
	UserID       string           `json:"userId"`
	ProjectID    string           `json:"projectId"`
}

// Decision is one planner answer. Action is never nil; "nothing to do" is
// schemas.NoAction.
type Decision struct {
	Response  string
	Action    schemas.Action
	Reasoning string
}

// ProjectPlanInput asks for a step by step plan. DOMSnapshot may be empty.
type ProjectPlanInput struct {
	Platform    schemas.Platform `json:"platform"`
	Goal        string           `json:"goal"`
	DOMSnapshot string           `json:"domSnapshot,omitempty"`
}

// PendingConfirmation holds a risky action until the user decides. It is
// resolved at most once; later calls return ErrConfirmationResolved.
type PendingConfirmation struct {
	SessionID string
	Entry     schemas.LogEntry
	Action    schemas.Action
	Reasoning string
	CreatedAt time.Time

	once      sync.Once
	onConfirm func(ctx context.Context) error
	onCancel  func() error
}

// Confirm executes the held action.
func (p *PendingConfirmation) Confirm(ctx context.Context) error {
	err := ErrConfirmationResolved
	p.once.Do(func() { err = p.onConfirm(ctx) })
	return err
}

// Cancel discards the held action.
func (p *PendingConfirmation) Cancel() error {
	err := ErrConfirmationResolved
	p.once.Do(func() { err = p.onCancel() })
	return err
}

// discard resolves the confirmation without running either closure.
func (p *PendingConfirmation) discard() bool {
	resolved := false
	p.once.Do(func() { resolved = true })
	return resolved
}

// ConfirmationView is the read-only form of a PendingConfirmation handed to
// the user-facing layers.
type ConfirmationView struct {
	SessionID string         `json:"sessionId"`
	EntryID   string         `json:"entryId"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"details,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (p *PendingConfirmation) view() ConfirmationView {
	return ConfirmationView{
		SessionID: p.SessionID,
		EntryID:   p.Entry.ID,
		Action:    p.Action.Name(),
		Params:    p.Action.Params(),
		Reasoning: p.Reasoning,
		Message:   p.Entry.Message,
		CreatedAt: p.CreatedAt,
	}
}
