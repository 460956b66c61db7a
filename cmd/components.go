// File: cmd/components.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/agent"
	"github.com/xkilldash9x/vibepilot/internal/browser"
	"github.com/xkilldash9x/vibepilot/internal/config"
	"github.com/xkilldash9x/vibepilot/internal/llmclient"
	"github.com/xkilldash9x/vibepilot/internal/store"
)

// Components holds the initialized services shared by the chat and serve
// commands.
type Components struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      *store.Store
	LLM        schemas.LLMClient
	Host       schemas.BrowserHost
	Controller *agent.Controller
}

// openStore opens the configured backend and loads the saved sessions.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	backend, err := store.NewBackend(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	platform, err := schemas.ParsePlatform(cfg.Agent().DefaultPlatform)
	if err != nil {
		backend.Close()
		return nil, err
	}
	opts := []store.Option{store.WithDefaultPlatform(platform)}
	if d := cfg.Store().FlushTimeout; d > 0 {
		opts = append(opts, store.WithFlushTimeout(d))
	}

	st := store.New(backend, logger, opts...)
	if err := st.Load(ctx); err != nil {
		_ = st.Close(context.Background())
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return st, nil
}

// newLLMFlows builds the model router and the structured flows on top of it.
func newLLMFlows(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.LLMClient, *agent.LLMFlows, error) {
	client, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	flows, err := agent.NewLLMFlows(client, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, flows, nil
}

// initializeComponents wires store, model, browser host and controller in
// dependency order and resumes sessions that were running. On failure every
// component started so far is closed.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close(context.Background())
		}
	}()

	if c.Store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	var flows *agent.LLMFlows
	if c.LLM, flows, err = newLLMFlows(ctx, cfg, logger); err != nil {
		return nil, err
	}

	host, err := browser.NewHost(ctx, cfg.Browser(), cfg.Agent().SnapshotMaxBytes, logger)
	if err != nil {
		return nil, err
	}
	c.Host = host

	c.Controller, err = agent.NewController(cfg.Agent(), agent.Dependencies{
		Store:          c.Store,
		Host:           c.Host,
		Planner:        flows,
		Namer:          flows,
		Summarizer:     flows,
		ProjectPlanner: flows,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent controller: %w", err)
	}

	c.Controller.Resume()
	logger.Info("Components initialized.",
		zap.Int("sessions", len(c.Store.List())),
		zap.String("browser_mode", string(cfg.Browser().Mode)))
	return c, nil
}

// Close shuts components down in reverse order: the controller first so no
// tick touches a closed host or store.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Controller != nil {
		errs = append(errs, c.Controller.Close())
	}
	if c.Host != nil {
		errs = append(errs, c.Host.Close())
	}
	if c.LLM != nil {
		errs = append(errs, c.LLM.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close(ctx))
	}
	err := errors.Join(errs...)
	if err != nil {
		c.Logger.Warn("Error during shutdown.", zap.Error(err))
	}
	return err
}
