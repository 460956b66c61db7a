package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// LLMRouter sends naming and summary requests to the fast model and
// planning requests to the powerful one.
type LLMRouter struct {
	logger   *zap.Logger
	fast     schemas.LLMClient
	powerful schemas.LLMClient
}

var _ schemas.LLMClient = (*LLMRouter)(nil)

// NewLLMRouter creates a router over one client per tier. Both tiers may
// share a client.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &LLMRouter{
		logger:   logger.Named("llm_router"),
		fast:     fastClient,
		powerful: powerfulClient,
	}, nil
}

// Generate dispatches on req.Tier. An empty tier means powerful.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	var client schemas.LLMClient
	switch req.Tier {
	case schemas.TierFast:
		client = r.fast
	case schemas.TierPowerful, "":
		client = r.powerful
	default:
		return "", fmt.Errorf("no LLM client configured for tier: %s", req.Tier)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(req.Tier)))
	return client.Generate(ctx, req)
}

// Close closes the fast client, then the powerful one unless it is the same.
func (r *LLMRouter) Close() error {
	err := r.fast.Close()
	if r.powerful != r.fast {
		err = errors.Join(err, r.powerful.Close())
	}
	return err
}
