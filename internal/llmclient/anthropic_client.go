package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

const defaultAnthropicMaxTokens = 2048

// MessagesClient is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements schemas.LLMClient using the Messages API.
type AnthropicClient struct {
	msg    MessagesClient
	config config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient initializes the SDK client for one configured model.
func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}
	ac := sdk.NewClient(opts...)
	return newAnthropicClient(&ac.Messages, cfg, logger)
}

func newAnthropicClient(msg MessagesClient, cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("Anthropic model name is required")
	}
	return &AnthropicClient{msg: msg, config: cfg, logger: logger.Named("llm_client.anthropic")}, nil
}

// Generate issues one non-streaming Messages.New request and concatenates the
// returned text blocks.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	maxTokens := c.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	user := req.UserPrompt
	if req.Options.ForceJSONFormat {
		user += "\n\nRespond with a single JSON object and nothing else."
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(c.config.Model),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	temperature := float64(c.config.Temperature)
	if req.Options.Temperature > 0 {
		temperature = req.Options.Temperature
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}

	start := time.Now()
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	if msg == nil {
		return "", errors.New("anthropic: response message is nil")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic API returned no text content (stop reason: %s)", msg.StopReason)
	}

	c.logger.Debug("LLM generation complete (Anthropic)",
		zap.String("model", c.config.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return b.String(), nil
}

// Close is a no-op for the HTTP based SDK.
func (c *AnthropicClient) Close() error { return nil }
