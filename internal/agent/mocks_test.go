package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface used by LLMFlows.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Browser Host Mock --

// MockHost mocks schemas.BrowserHost.
type MockHost struct {
	mock.Mock
}

func (m *MockHost) CaptureSnapshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockHost) Execute(ctx context.Context, action schemas.Action) (schemas.ExecResult, error) {
	args := m.Called(ctx, action)
	return args.Get(0).(schemas.ExecResult), args.Error(1)
}

func (m *MockHost) Close() error {
	return m.Called().Error(0)
}

// -- Flow Mocks --

// MockPlanner mocks Planner.
type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) NextAction(ctx context.Context, in PlannerInput) (Decision, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(Decision), args.Error(1)
}

// MockNamer mocks Namer.
type MockNamer struct {
	mock.Mock
}

func (m *MockNamer) NameChat(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

// MockSummarizer mocks Summarizer.
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, logs string) (string, error) {
	args := m.Called(ctx, logs)
	return args.String(0), args.Error(1)
}

// MockProjectPlanner mocks ProjectPlanner.
type MockProjectPlanner struct {
	mock.Mock
}

func (m *MockProjectPlanner) PlanProject(ctx context.Context, in ProjectPlanInput) ([]string, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
