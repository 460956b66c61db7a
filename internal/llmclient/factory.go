// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

// envKeys lists the environment variables consulted when a model entry has no
// api_key of its own.
var envKeys = map[config.LLMProvider][]string{
	config.ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	config.ProviderOpenAI:    {"OPENAI_API_KEY"},
	config.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
}

// NewClient builds the tier router described by cfg. Both tiers must resolve
// to an entry in cfg.Models.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.DefaultFastModel == "" || cfg.DefaultPowerfulModel == "" {
		return nil, fmt.Errorf("both default_fast_model and default_powerful_model must be configured")
	}

	fastCfg, ok := cfg.Models[cfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("configuration for default fast model '%s' not found in models map", cfg.DefaultFastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("configuration for default powerful model '%s' not found in models map", cfg.DefaultPowerfulModel)
	}

	fast, err := newProviderClient(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fast tier client (%s): %w", cfg.DefaultFastModel, err)
	}

	// Share one client when both tiers point at the same entry.
	if cfg.DefaultFastModel == cfg.DefaultPowerfulModel {
		return NewLLMRouter(logger, fast, fast)
	}

	powerful, err := newProviderClient(ctx, powerfulCfg, logger)
	if err != nil {
		fast.Close()
		return nil, fmt.Errorf("failed to initialize powerful tier client (%s): %w", cfg.DefaultPowerfulModel, err)
	}
	return NewLLMRouter(logger, fast, powerful)
}

func newProviderClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = lookupEnvKey(cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic)
	}
}

func lookupEnvKey(provider config.LLMProvider) string {
	for _, name := range envKeys[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
