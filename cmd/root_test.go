// File: cmd/root_test.go
package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/vibepilot/internal/config"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd_SkipsConfig(t *testing.T) {
	// A broken config file must not stop `version`.
	out, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vibepilot "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := executeCommand(t, baseArgs(t, "")...)
	require.NoError(t, err)
	assert.Contains(t, out, "VibePilot drives app builder sites")
	assert.Contains(t, out, "chat")
	assert.Contains(t, out, "serve")
}

func TestConfigCmd_FileAndEnvironment(t *testing.T) {
	args := baseArgs(t, `
agent:
  default_platform: Vercel
  tick_cooldown: 7s
browser:
  mode: launch
  headless: true
`, "config")
	t.Setenv("VIBEPILOT_AGENT_USER_ID", "env@example.com")

	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Vercel", got.AgentCfg.DefaultPlatform)
	assert.Equal(t, 7*time.Second, got.AgentCfg.TickCooldown)
	assert.Equal(t, "env@example.com", got.AgentCfg.UserID)
	assert.Equal(t, config.BrowserLaunch, got.BrowserCfg.Mode)
	assert.True(t, got.BrowserCfg.Headless)
}

func TestConfigCmd_FlagOverrides(t *testing.T) {
	args := baseArgs(t, "", "--browser", "REMOTE", "--remote-url", "http://10.0.0.2:9222", "--store", "memory", "--cooldown", "2s", "config")
	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, config.BrowserRemote, got.BrowserCfg.Mode)
	assert.Equal(t, "http://10.0.0.2:9222", got.BrowserCfg.RemoteURL)
	assert.Equal(t, config.StoreMemory, got.StoreCfg.Backend)
	assert.Equal(t, 2*time.Second, got.AgentCfg.TickCooldown)
}

func TestConfigCmd_InvalidValues(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		_, err := executeCommand(t, baseArgs(t, "", "--browser", "firefox", "config")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown browser mode")
	})
	t.Run("file", func(t *testing.T) {
		_, err := executeCommand(t, baseArgs(t, "agent:\n  default_platform: Heroku\n", "config")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_platform")
	})
	t.Run("unreadable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("agent: [unclosed"), 0o600))
		_, err := executeCommand(t, "--config", path, "config")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestConfigCmd_RedactsSecrets(t *testing.T) {
	args := baseArgs(t, `
llm:
  models:
    gemini-flash:
      provider: gemini
      model: gemini-2.5-flash
      api_key: sk-model-key
`, "config")
	t.Setenv("VIBEPILOT_JWT_SECRET", "jwt-secret-value")

	out, err := executeCommand(t, args...)
	require.NoError(t, err)
	assert.NotContains(t, out, "jwt-secret-value")
	assert.NotContains(t, out, "sk-model-key")
	assert.Contains(t, out, redacted)

	out, err = executeCommand(t, append(args[:len(args)-1:len(args)-1], "config", "--show-secrets")...)
	require.NoError(t, err)
	assert.Contains(t, out, "jwt-secret-value")
	assert.Contains(t, out, "sk-model-key")
}

func TestRedact_LeavesOriginalUntouched(t *testing.T) {
	cfg := config.NewDefaultConfig()
	m := cfg.LLMCfg.Models["gemini-flash"]
	m.APIKey = "secret"
	cfg.LLMCfg.Models["gemini-flash"] = m
	cfg.StoreCfg.PostgresURL = "postgres://u:p@db/vibepilot"

	out := redact(*cfg)
	assert.Equal(t, redacted, out.LLMCfg.Models["gemini-flash"].APIKey)
	assert.Equal(t, redacted, out.StoreCfg.PostgresURL)
	assert.Empty(t, out.ServerCfg.JWTSecret)
	assert.Equal(t, "secret", cfg.LLMCfg.Models["gemini-flash"].APIKey)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "VIBEPILOT_AGENT_USER_ID"
	t.Cleanup(func() { os.Unsetenv(key) })

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=dotenv@example.com\n"), 0o600))

	args := append([]string{"--config", createTempConfig(t, ""), "--env-file", envFile}, "config")
	out, err := executeCommand(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "dotenv@example.com")

	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}

func TestTokenCmd(t *testing.T) {
	t.Run("issues a verifiable token", func(t *testing.T) {
		t.Setenv("VIBEPILOT_JWT_SECRET", "token-secret")
		out, err := executeCommand(t, baseArgs(t, "", "token", "--subject", "ops", "--ttl", "1h")...)
		require.NoError(t, err)

		claims := &jwt.RegisteredClaims{}
		_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
			return []byte("token-secret"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		require.NotNil(t, claims.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("requires a secret", func(t *testing.T) {
		_, err := executeCommand(t, baseArgs(t, "", "token")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt_secret")
	})
}
