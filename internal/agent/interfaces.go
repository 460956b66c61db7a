package agent

import (
	"context"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// Planner proposes the next browser action for a goal and page snapshot.
type Planner interface {
	NextAction(ctx context.Context, in PlannerInput) (Decision, error)
}

// Namer turns a first chat message into a short title.
type Namer interface {
	NameChat(ctx context.Context, message string) (string, error)
}

// Summarizer condenses formatted agent logs into one sentence.
type Summarizer interface {
	Summarize(ctx context.Context, logs string) (string, error)
}

// ProjectPlanner breaks a project goal into steps.
type ProjectPlanner interface {
	PlanProject(ctx context.Context, in ProjectPlanInput) ([]string, error)
}

// SessionStore is the subset of the session store the controller writes
// through. *store.Store satisfies it.
type SessionStore interface {
	Create(in schemas.NewSession) (schemas.Session, error)
	Get(id string) (schemas.Session, error)
	List() []schemas.Session
	AppendLog(id string, entry schemas.LogInput) (schemas.LogEntry, error)
	Update(id string, patch schemas.SessionPatch) (schemas.Session, error)
	Delete(id string) (string, error)
	ActiveID() string
	SetActive(id string) error
}
