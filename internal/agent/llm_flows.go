package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxChatNameWords = 5

const (
	plannerOutputSchema = `{
		"type": "object",
		"required": ["action", "reasoning"],
		"properties": {
			"response": {"type": "string"},
			"action": {"type": "string", "minLength": 1},
			"actionDetails": {"type": ["object", "null"]},
			"reasoning": {"type": "string"}
		}
	}`
	chatNameOutputSchema = `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`
	summaryOutputSchema = `{
		"type": "object",
		"required": ["summary"],
		"properties": {"summary": {"type": "string", "minLength": 1}}
	}`
	projectPlanOutputSchema = `{
		"type": "object",
		"required": ["steps"],
		"properties": {
			"steps": {"type": "array", "minItems": 1, "items": {"type": "string"}}
		}
	}`
)

type plannerOutput struct {
	Response      string         `json:"response"`
	Action        string         `json:"action"`
	ActionDetails map[string]any `json:"actionDetails"`
	Reasoning     string         `json:"reasoning"`
}

// LLMFlows implements Planner, Namer, Summarizer and ProjectPlanner on top of
// one LLM client. Every answer is parsed as JSON and validated against the
// flow's schema before it is used.
type LLMFlows struct {
	client schemas.LLMClient
	logger *zap.Logger

	plannerSchema *jsonschema.Schema
	nameSchema    *jsonschema.Schema
	summarySchema *jsonschema.Schema
	planSchema    *jsonschema.Schema
}

// NewLLMFlows compiles the output schemas.
func NewLLMFlows(client schemas.LLMClient, logger *zap.Logger) (*LLMFlows, error) {
	f := &LLMFlows{client: client, logger: logger.Named("llm_flows")}
	var err error
	if f.plannerSchema, err = compileSchema("planner.json", plannerOutputSchema); err != nil {
		return nil, err
	}
	if f.nameSchema, err = compileSchema("chat_name.json", chatNameOutputSchema); err != nil {
		return nil, err
	}
	if f.summarySchema, err = compileSchema("summary.json", summaryOutputSchema); err != nil {
		return nil, err
	}
	if f.planSchema, err = compileSchema("project_plan.json", projectPlanOutputSchema); err != nil {
		return nil, err
	}
	return f, nil
}

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// NextAction asks the powerful tier for the next browser action.
func (f *LLMFlows) NextAction(ctx context.Context, in PlannerInput) (Decision, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: contextualActionSystemPrompt,
		UserPrompt:   contextualActionPrompt(in),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	}
	var out plannerOutput
	if err := f.generate(ctx, "contextual_action", req, f.plannerSchema, &out); err != nil {
		return Decision{}, fmt.Errorf("%w: %w", schemas.ErrPlannerCallFailed, err)
	}

	response := strings.TrimSpace(out.Response)
	if response == "" {
		response = strings.TrimSpace(out.Reasoning)
	}
	return Decision{
		Response:  response,
		Action:    schemas.ParseAction(out.Action, out.ActionDetails),
		Reasoning: strings.TrimSpace(out.Reasoning),
	}, nil
}

// NameChat asks the fast tier for a title of at most five words.
func (f *LLMFlows) NameChat(ctx context.Context, message string) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: chatNameSystemPrompt,
		UserPrompt:   chatNamePrompt(message),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.5, ForceJSONFormat: true},
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := f.generate(ctx, "chat_name", req, f.nameSchema, &out); err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrNamingFailed, err)
	}
	name := clampWords(strings.Trim(strings.TrimSpace(out.Name), `"'`), maxChatNameWords)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", schemas.ErrNamingFailed)
	}
	return name, nil
}

// Summarize asks the fast tier for a one sentence summary of logs.
func (f *LLMFlows) Summarize(ctx context.Context, logs string) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   summaryPrompt(logs),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.3, ForceJSONFormat: true},
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := f.generate(ctx, "log_summary", req, f.summarySchema, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

// PlanProject asks the powerful tier for the steps towards a project goal.
func (f *LLMFlows) PlanProject(ctx context.Context, in ProjectPlanInput) ([]string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: projectPlanSystemPrompt,
		UserPrompt:   projectPlanPrompt(in),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.4, ForceJSONFormat: true},
	}
	var out struct {
		Steps []string `json:"steps"`
	}
	if err := f.generate(ctx, "project_plan", req, f.planSchema, &out); err != nil {
		return nil, err
	}
	steps := make([]string, 0, len(out.Steps))
	for _, s := range out.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("project_plan: the plan has no steps")
	}
	return steps, nil
}

// generate runs one request and decodes the validated JSON answer into out.
func (f *LLMFlows) generate(ctx context.Context, flow string, req schemas.GenerationRequest, schema *jsonschema.Schema, out any) error {
	raw, err := f.client.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: LLM generation failed: %w", flow, err)
	}
	text := extractJSON(raw)
	if text == "" {
		return fmt.Errorf("%s: could not find any JSON in the LLM response", flow)
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		f.logger.Warn("Failed to unmarshal LLM response",
			zap.String("flow", flow),
			zap.String("raw_response", raw),
			zap.String("extracted_json", text),
			zap.Error(err))
		return fmt.Errorf("%s: failed to unmarshal extracted JSON: %w", flow, err)
	}
	if err := schema.Validate(doc); err != nil {
		f.logger.Warn("LLM response does not match schema",
			zap.String("flow", flow),
			zap.String("extracted_json", text),
			zap.Error(err))
		return fmt.Errorf("%s: response does not match schema: %w", flow, err)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", flow, err)
	}
	return nil
}

var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// extractJSON pulls a JSON object out of a model answer, handling markdown
// code fences and chatter around the object.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

func clampWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
