// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	LLM() LLMRouterConfig
	Browser() BrowserConfig
	Store() StoreConfig
	Server() ServerConfig

	// Flag driven overrides.
	SetBrowserMode(BrowserMode)
	SetBrowserRemoteURL(string)
	SetStoreBackend(StoreBackend)
	SetServerAddr(string)
	SetAgentTickCooldown(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	AgentCfg   AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LLMCfg     LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	BrowserCfg BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	StoreCfg   StoreConfig     `mapstructure:"store" yaml:"store"`
	ServerCfg  ServerConfig    `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) LLM() LLMRouterConfig   { return c.LLMCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserMode(m BrowserMode) { c.BrowserCfg.Mode = m }
func (c *Config) SetBrowserRemoteURL(u string) { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetStoreBackend(b StoreBackend) { c.StoreCfg.Backend = b }
func (c *Config) SetServerAddr(addr string) { c.ServerCfg.Addr = addr }
func (c *Config) SetAgentTickCooldown(d time.Duration) { c.AgentCfg.TickCooldown = d }

// LoggerConfig defines all the configuration settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig tunes the control loop.
type AgentConfig struct {
	// TickCooldown is the pause between one committed tick and the next.
	TickCooldown time.Duration `mapstructure:"tick_cooldown" yaml:"tick_cooldown"`
	// TickTimeout bounds a whole tick, snapshot through execution.
	TickTimeout     time.Duration `mapstructure:"tick_timeout" yaml:"tick_timeout"`
	UserID          string        `mapstructure:"user_id" yaml:"user_id"`
	DefaultPlatform string        `mapstructure:"default_platform" yaml:"default_platform"`
	// ConfirmUnknownActions routes unrecognized action names through the
	// confirmation gate instead of treating them as safe.
	ConfirmUnknownActions bool `mapstructure:"confirm_unknown_actions" yaml:"confirm_unknown_actions"`
	// PlannerRate is the global planner call budget per second across all
	// sessions. Zero disables the limiter.
	PlannerRate      float64 `mapstructure:"planner_rate" yaml:"planner_rate"`
	PlannerBurst     int     `mapstructure:"planner_burst" yaml:"planner_burst"`
	SnapshotMaxBytes int     `mapstructure:"snapshot_max_bytes" yaml:"snapshot_max_bytes"`
	SummaryLogLimit  int     `mapstructure:"summary_log_limit" yaml:"summary_log_limit"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMRouterConfig maps the fast and powerful tiers to named models. Model
// names are viper keys and must not contain dots.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// BrowserMode selects how the agent reaches a page.
type BrowserMode string

const (
	// BrowserPlaceholder simulates every action without a browser.
	BrowserPlaceholder BrowserMode = "placeholder"
	// BrowserRemote attaches to an already running Chrome over its
	// remote debugging endpoint and drives the user's active tab.
	BrowserRemote BrowserMode = "remote"
	// BrowserLaunch starts a dedicated Chrome instance.
	BrowserLaunch BrowserMode = "launch"
)

// BrowserConfig holds settings for the page host.
type BrowserConfig struct {
	Mode      BrowserMode `mapstructure:"mode" yaml:"mode"`
	RemoteURL string      `mapstructure:"remote_url" yaml:"remote_url"`
	// TargetURLContains picks the tab to drive when several are open.
	TargetURLContains string        `mapstructure:"target_url_contains" yaml:"target_url_contains"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	SnapshotTimeout   time.Duration `mapstructure:"snapshot_timeout" yaml:"snapshot_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// StoreBackend selects where session state is persisted.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
	StoreMemory   StoreBackend = "memory"
)

// StoreConfig holds the session persistence settings.
type StoreConfig struct {
	Backend      StoreBackend  `mapstructure:"backend" yaml:"backend"`
	Path         string        `mapstructure:"path" yaml:"path"`
	PostgresURL  string        `mapstructure:"postgres_url" yaml:"postgres_url"`
	StateKey     string        `mapstructure:"state_key" yaml:"state_key"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout" yaml:"flush_timeout"`
}

// ServerConfig configures the HTTP API used by `vibepilot serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vibepilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.tick_cooldown", "5s")
	v.SetDefault("agent.tick_timeout", "3m")
	v.SetDefault("agent.user_id", "user@vibepilot.ai")
	v.SetDefault("agent.default_platform", "Firebase")
	v.SetDefault("agent.confirm_unknown_actions", false)
	v.SetDefault("agent.planner_rate", 0.5)
	v.SetDefault("agent.planner_burst", 2)
	v.SetDefault("agent.snapshot_max_bytes", 200_000)
	v.SetDefault("agent.summary_log_limit", 50)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models", map[string]interface{}{
		"gemini-flash": map[string]interface{}{
			"provider":    "gemini",
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
			"temperature": 0.4,
			"max_tokens":  1024,
		},
		"gemini-pro": map[string]interface{}{
			"provider":    "gemini",
			"model":       "gemini-2.5-pro",
			"api_timeout": "120s",
			"temperature": 0.2,
			"max_tokens":  4096,
		},
	})

	// -- Browser --
	v.SetDefault("browser.mode", string(BrowserPlaceholder))
	v.SetDefault("browser.remote_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.target_url_contains", "")
	v.SetDefault("browser.start_url", "about:blank")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.snapshot_timeout", "20s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Store --
	v.SetDefault("store.backend", string(StoreFile))
	v.SetDefault("store.path", "~/.vibepilot/state.json")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.state_key", "vibepilot-state")
	v.SetDefault("store.flush_timeout", "10s")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8765")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper unmarshals, normalizes and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are usually supplied through the environment.
	v.BindEnv("server.jwt_secret", "VIBEPILOT_JWT_SECRET")
	v.BindEnv("store.postgres_url", "VIBEPILOT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalize expands paths and lowercases enum-like fields.
func (c *Config) normalize() error {
	c.BrowserCfg.Mode = BrowserMode(strings.ToLower(string(c.BrowserCfg.Mode)))
	c.StoreCfg.Backend = StoreBackend(strings.ToLower(string(c.StoreCfg.Backend)))

	if c.StoreCfg.Path != "" {
		expanded, err := homedir.Expand(c.StoreCfg.Path)
		if err != nil {
			return fmt.Errorf("failed to expand store.path: %w", err)
		}
		c.StoreCfg.Path = expanded
	}
	if c.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(c.LoggerCfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.LoggerCfg.LogFile = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.ServerCfg.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.TickCooldown < 0 {
		return fmt.Errorf("tick_cooldown must not be negative")
	}
	if a.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	if a.PlannerRate < 0 {
		return fmt.Errorf("planner_rate must not be negative")
	}
	if a.PlannerRate > 0 && a.PlannerBurst <= 0 {
		return fmt.Errorf("planner_burst must be a positive integer when planner_rate is set")
	}
	switch strings.ToLower(a.DefaultPlatform) {
	case "firebase", "replit", "vercel":
	default:
		return fmt.Errorf("default_platform %q is not one of Firebase, Replit, Vercel", a.DefaultPlatform)
	}
	return nil
}

// Validate checks that both tiers resolve to a configured model.
func (l *LLMRouterConfig) Validate() error {
	for tier, name := range map[string]string{"fast": l.DefaultFastModel, "powerful": l.DefaultPowerfulModel} {
		if name == "" {
			return fmt.Errorf("default_%s_model must be set", tier)
		}
		mc, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("default_%s_model %q has no entry under llm.models", tier, name)
		}
		switch mc.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", name, mc.Provider)
		}
	}
	return nil
}

// Validate checks the browser host selection.
func (b *BrowserConfig) Validate() error {
	switch b.Mode {
	case BrowserPlaceholder, BrowserLaunch:
	case BrowserRemote:
		if b.RemoteURL == "" {
			return fmt.Errorf("remote_url is required when mode is %q", BrowserRemote)
		}
	default:
		return fmt.Errorf("unknown browser mode %q", b.Mode)
	}
	return nil
}

// Validate checks the persistence backend selection.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for the %s backend", s.Backend)
		}
	case StorePostgres:
		if s.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Backend)
	}
	if s.StateKey == "" {
		return fmt.Errorf("state_key must not be empty")
	}
	return nil
}
