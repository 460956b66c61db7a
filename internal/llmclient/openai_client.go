package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

// OpenAIClient implements schemas.LLMClient using the chat completions API.
// Endpoint may point at any OpenAI compatible server.
type OpenAIClient struct {
	client openai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the SDK client for one configured model.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via api_key or OPENAI_API_KEY environment variable)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("OpenAI model name is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate issues one non-streaming chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.config.Model),
		Messages: messages,
	}

	temperature := float64(c.config.Temperature)
	if req.Options.Temperature > 0 {
		temperature = req.Options.Temperature
	}
	params.Temperature = openai.Float(temperature)
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.config.MaxTokens))
	}
	if c.config.TopP > 0 {
		params.TopP = openai.Float(float64(c.config.TopP))
	}
	if req.Options.ForceJSONFormat {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai API returned no content")
	}

	c.logger.Debug("LLM generation complete (OpenAI)",
		zap.String("model", c.config.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op for the HTTP based SDK.
func (c *OpenAIClient) Close() error { return nil }
