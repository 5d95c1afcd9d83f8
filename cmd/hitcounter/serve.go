package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/internal/gateway"
	"github.com/wudi/hitcounter/internal/logging"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the counting proxy over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer logging.Sync()

			logging.Info("Starting hit counter",
				zap.String("version", version),
				zap.String("config", a.configPath),
				zap.String("table", cfg.Store.TableName()),
				zap.String("downstream", cfg.Downstream.Target()),
				zap.String("response_mode", cfg.Listener.ResponseMode),
			)

			gw, err := gateway.New(cmd.Context(), cfg)
			if err != nil {
				logging.Error("Failed to create hit counter", zap.Error(err))
				return err
			}

			if err := gateway.NewServer(cfg, gw).Run(cmd.Context()); err != nil {
				logging.Error("Server error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
