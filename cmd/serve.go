// File: cmd/serve.go
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/api"
	"github.com/xkilldash9x/vibepilot/internal/observability"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent behind an HTTP and websocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetServerAddr(addr)
			}
			logger := observability.GetLogger()
			if cfg.Server().JWTSecret == "" {
				logger.Warn("API authentication is disabled; set server.jwt_secret to require bearer tokens.")
			}

			platform, err := schemas.ParsePlatform(cfg.Agent().DefaultPlatform)
			if err != nil {
				return err
			}

			comps, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			srv := api.NewServer(comps.Controller, cfg.Server(), platform, logger)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				logger.Info("Shutting down agent.")
				return nil
			})

			err = g.Wait()
			if closeErr := comps.Close(context.Background()); err == nil {
				err = closeErr
			}
			if err != nil {
				logger.Error("Server stopped with an error.", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
