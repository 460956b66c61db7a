package schemas

import (
	"context"
	"time"
)

// -- LLM Interfaces --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Naming and summaries.
	TierPowerful ModelTier = "powerful" // Next action planning and project planning.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Browser Host Contract --

// ExecStatus is the outcome reported by the host for one action.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecError   ExecStatus = "error"
)

// ExecResult is the request/response contract between the agent and the page.
type ExecResult struct {
	Status    ExecStatus    `json:"status"`
	Message   string        `json:"message,omitempty"`
	ErrorCode ErrorCode     `json:"errorCode,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
}

// FailedResult converts an execution error into its wire form.
func FailedResult(err error) ExecResult {
	return ExecResult{Status: ExecError, ErrorCode: CodeOf(err), Error: err.Error()}
}

// BrowserHost captures page snapshots and performs actions on the active tab.
type BrowserHost interface {
	// CaptureSnapshot returns the serialized DOM of the active page. Failures
	// match ErrSnapshotUnavailable.
	CaptureSnapshot(ctx context.Context) (string, error)
	// Execute performs one action. Failures are *ActionError values.
	Execute(ctx context.Context, action Action) (ExecResult, error)
	// Close releases any browser resources.
	Close() error
}
