// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/internal/config"
	"github.com/xkilldash9x/vibepilot/internal/observability"
)

type contextKey string

const configKey contextKey = "vibepilot-config"

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	cfgFile      string
	envFile      string
	browserMode  string
	remoteURL    string
	storeBackend string
	cooldown     time.Duration
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// with its own viper instance.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:     "vibepilot",
		Short:   "VibePilot drives app builder sites in your browser towards a goal.",
		Version: Version,
		// Errors are printed once by Execute.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vibepilot"})
				return err
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("browser_mode", string(cfg.Browser().Mode)),
				zap.String("store_backend", string(cfg.Store().Backend)))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.vibepilot/config.yaml)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&flags.browserMode, "browser", "", "browser host: placeholder, remote or launch")
	pf.StringVar(&flags.remoteURL, "remote-url", "", "Chrome remote debugging endpoint for --browser=remote")
	pf.StringVar(&flags.storeBackend, "store", "", "session store backend: file, sqlite, postgres or memory")
	pf.DurationVar(&flags.cooldown, "cooldown", 0, "pause between agent ticks")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newChatCmd(),
		newSessionCmd(),
		newServeCmd(),
		newConfigCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree with a signal aware context.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed.", zap.Error(err))
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// loadConfig layers defaults, the config file, the environment and flags,
// in increasing precedence.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	if err := loadEnvFile(flags.envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	config.SetDefaults(v)
	if err := initializeConfig(v, flags.cfgFile); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load or validate config: %w", err)
	}

	if applyFlagOverrides(cmd, flags, cfg) {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid flag combination: %w", err)
		}
	}
	return cfg, nil
}

// initializeConfig reads the config file and binds VIBEPILOT_* environment
// variables. A missing config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.vibepilot")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VIBEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// loadEnvFile loads a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyFlagOverrides copies explicitly set flags onto cfg and reports whether
// anything changed.
func applyFlagOverrides(cmd *cobra.Command, flags *rootFlags, cfg config.Interface) bool {
	changed := false
	fl := cmd.Flags()
	if fl.Changed("browser") {
		cfg.SetBrowserMode(config.BrowserMode(strings.ToLower(flags.browserMode)))
		changed = true
	}
	if fl.Changed("remote-url") {
		cfg.SetBrowserRemoteURL(flags.remoteURL)
		changed = true
	}
	if fl.Changed("store") {
		cfg.SetStoreBackend(config.StoreBackend(strings.ToLower(flags.storeBackend)))
		changed = true
	}
	if fl.Changed("cooldown") {
		cfg.SetAgentTickCooldown(flags.cooldown)
		changed = true
	}
	return changed
}

// configFrom returns the configuration stored by the root command.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
