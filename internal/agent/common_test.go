package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
	"github.com/xkilldash9x/vibepilot/internal/store"
)

// waitTimeout waits for wg but gives up after timeout. Returns true if the
// wait group finished in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

type harness struct {
	ctrl     *Controller
	store    *store.Store
	host     *MockHost
	planner  *MockPlanner
	namer    *MockNamer
	summary  *MockSummarizer
	projects *MockProjectPlanner
	logs     *observer.ObservedLogs
}

// newHarness wires a controller over an in-memory store. The default
// cooldown is long enough that tests drive ticks by hand.
func newHarness(t *testing.T, tune ...func(*config.AgentConfig)) *harness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	st := store.New(store.NewMemoryBackend(), logger)
	require.NoError(t, st.Load(context.Background()))

	cfg := config.AgentConfig{
		TickCooldown: time.Hour,
		TickTimeout:  5 * time.Second,
		UserID:       "user@vibepilot.ai",
	}
	for _, fn := range tune {
		fn(&cfg)
	}

	h := &harness{
		store:    st,
		host:     new(MockHost),
		planner:  new(MockPlanner),
		namer:    new(MockNamer),
		summary:  new(MockSummarizer),
		projects: new(MockProjectPlanner),
		logs:     logs,
	}
	ctrl, err := NewController(cfg, Dependencies{
		Store:          st,
		Host:           h.host,
		Planner:        h.planner,
		Namer:          h.namer,
		Summarizer:     h.summary,
		ProjectPlanner: h.projects,
	}, logger)
	require.NoError(t, err)
	h.ctrl = ctrl

	t.Cleanup(func() {
		_ = ctrl.Close()
		_ = st.Close(context.Background())
	})
	return h
}

// running creates a Running session with goal and no logs.
func (h *harness) running(t *testing.T, goal string) string {
	t.Helper()
	sess, err := h.store.Create(schemas.NewSession{
		Name:     "Test",
		Goal:     goal,
		Platform: schemas.PlatformFirebase,
		Status:   schemas.StatusRunning,
	})
	require.NoError(t, err)
	return sess.ID
}

func (h *harness) session(t *testing.T, id string) schemas.Session {
	t.Helper()
	sess, err := h.store.Get(id)
	require.NoError(t, err)
	return sess
}

func (h *harness) messages(t *testing.T, id string) []string {
	t.Helper()
	var out []string
	for _, entry := range h.session(t, id).Logs {
		out = append(out, entry.Message)
	}
	return out
}

func (h *harness) entriesOfType(t *testing.T, id string, typ schemas.LogType) []schemas.LogEntry {
	t.Helper()
	var out []schemas.LogEntry
	for _, entry := range h.session(t, id).Logs {
		if entry.Type == typ {
			out = append(out, entry)
		}
	}
	return out
}

func (h *harness) timerArmed(id string) bool {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	st, ok := h.ctrl.sessions[id]
	return ok && st.timer != nil
}

func decide(action schemas.Action, response string) Decision {
	return Decision{Response: response, Action: action, Reasoning: "because the goal needs it"}
}

func success(msg string) schemas.ExecResult {
	return schemas.ExecResult{Status: schemas.ExecSuccess, Message: msg}
}
