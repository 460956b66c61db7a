// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "vibepilot", cfg.Logger().ServiceName)
	assert.Equal(t, 5*time.Second, cfg.Agent().TickCooldown)
	assert.Equal(t, "user@vibepilot.ai", cfg.Agent().UserID)
	assert.Equal(t, "Firebase", cfg.Agent().DefaultPlatform)
	assert.False(t, cfg.Agent().ConfirmUnknownActions)
	assert.Equal(t, BrowserPlaceholder, cfg.Browser().Mode)
	assert.Equal(t, StoreFile, cfg.Store().Backend)
	assert.Equal(t, "vibepilot-state", cfg.Store().StateKey)
	assert.Equal(t, "gemini-pro", cfg.LLM().DefaultPowerfulModel)

	fast, ok := cfg.LLM().Models["gemini-flash"]
	require.True(t, ok, "dotted model names would be split by viper")
	assert.Equal(t, ProviderGemini, fast.Provider)
	assert.Equal(t, "gemini-2.5-flash", fast.Model)
	assert.Equal(t, 60*time.Second, fast.APITimeout)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Defaults are valid", func(t *testing.T) {
		require.NoError(t, NewDefaultConfig().Validate())
	})

	t.Run("Agent", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AgentCfg.UserID = ""
		assert.ErrorContains(t, cfg.Validate(), "user_id must not be empty")

		cfg = NewDefaultConfig()
		cfg.AgentCfg.DefaultPlatform = "Heroku"
		assert.ErrorContains(t, cfg.Validate(), "default_platform")

		cfg = NewDefaultConfig()
		cfg.AgentCfg.PlannerBurst = 0
		assert.ErrorContains(t, cfg.Validate(), "planner_burst")

		cfg.AgentCfg.PlannerRate = 0
		assert.NoError(t, cfg.Validate(), "burst is irrelevant when the limiter is off")
	})

	t.Run("LLM", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLMCfg.DefaultFastModel = "missing"
		assert.ErrorContains(t, cfg.Validate(), `default_fast_model "missing" has no entry`)

		cfg = NewDefaultConfig()
		m := cfg.LLMCfg.Models["gemini-pro"]
		m.Provider = "ollama"
		cfg.LLMCfg.Models["gemini-pro"] = m
		assert.ErrorContains(t, cfg.Validate(), "unsupported provider")
	})

	t.Run("Browser", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetBrowserMode(BrowserRemote)
		cfg.SetBrowserRemoteURL("")
		assert.ErrorContains(t, cfg.Validate(), "remote_url is required")

		cfg.SetBrowserMode("firefox")
		assert.ErrorContains(t, cfg.Validate(), "unknown browser mode")
	})

	t.Run("Store", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetStoreBackend(StorePostgres)
		assert.ErrorContains(t, cfg.Validate(), "postgres_url is required")

		cfg.StoreCfg.PostgresURL = "postgres://localhost/vibepilot"
		assert.NoError(t, cfg.Validate())

		cfg.SetStoreBackend(StoreMemory)
		cfg.StoreCfg.Path = ""
		assert.NoError(t, cfg.Validate())

		cfg.SetStoreBackend("redis")
		assert.ErrorContains(t, cfg.Validate(), "unknown store backend")
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")

	yamlConfig := `
agent:
  tick_cooldown: 250ms
  default_platform: Vercel
browser:
  mode: REMOTE
  remote_url: http://localhost:9333
store:
  backend: sqlite
  path: ~/vp/state.db
llm:
  default_fast_model: mini
  default_powerful_model: claude
  models:
    mini:
      provider: openai
      model: gpt-4o-mini
    claude:
      provider: anthropic
      model: claude-sonnet-4-5
      max_tokens: 2048
`
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Agent().TickCooldown)
	assert.Equal(t, "Vercel", cfg.Agent().DefaultPlatform)
	assert.Equal(t, BrowserRemote, cfg.Browser().Mode, "modes are normalized to lower case")
	assert.Equal(t, "http://localhost:9333", cfg.Browser().RemoteURL)
	assert.Equal(t, StoreSQLite, cfg.Store().Backend)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "vp", "state.db"), cfg.Store().Path)
	assert.False(t, strings.HasPrefix(cfg.Store().Path, "~"))

	assert.Equal(t, ProviderAnthropic, cfg.LLM().Models["claude"].Provider)
	assert.Equal(t, 2048, cfg.LLM().Models["claude"].MaxTokens)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	t.Setenv("VIBEPILOT_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")

	v := viper.New()
	SetDefaults(v)
	v.Set("store.backend", "postgres")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewConfigFromViper_DatabaseURLFromEnv(t *testing.T) {
	t.Setenv("VIBEPILOT_DATABASE_URL", "postgres://env/vibepilot")

	v := viper.New()
	SetDefaults(v)
	v.Set("store.backend", "postgres")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/vibepilot", cfg.Store().PostgresURL)
}
