// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/vibepilot/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			out := *cfg
			if !showSecrets {
				out = redact(out)
			}
			data, err := yaml.Marshal(&out)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print API keys, database URLs and the JWT secret")
	return cmd
}

// redact returns a copy of cfg with credentials replaced. The models map is
// copied so the loaded configuration is left untouched.
func redact(cfg config.Config) config.Config {
	if cfg.ServerCfg.JWTSecret != "" {
		cfg.ServerCfg.JWTSecret = redacted
	}
	if cfg.StoreCfg.PostgresURL != "" {
		cfg.StoreCfg.PostgresURL = redacted
	}
	models := make(map[string]config.LLMModelConfig, len(cfg.LLMCfg.Models))
	for name, m := range cfg.LLMCfg.Models {
		if m.APIKey != "" {
			m.APIKey = redacted
		}
		models[name] = m
	}
	cfg.LLMCfg.Models = models
	return cfg
}
