package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"summary\":\"Clicked save.\"}"}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestOpenAIClient_Generate(t *testing.T) {
	logger, logs := setupTestLogger(t)

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionBody)
	}))
	defer srv.Close()

	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Model = "gpt-4o"
	cfg.APIKey = "sk-test"
	cfg.Endpoint = srv.URL

	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "summarize",
		UserPrompt:   "logs",
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"Clicked save."}`, out)

	assert.Equal(t, "gpt-4o", captured["model"])
	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	rf, ok := captured["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", rf["type"])
	assert.Equal(t, 1, logs.FilterMessage("LLM generation complete (OpenAI)").Len())
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	logger, _ := setupTestLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`)
	}))
	defer srv.Close()

	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Endpoint = srv.URL

	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	assert.ErrorContains(t, err, "no content")
}
