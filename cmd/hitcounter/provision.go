package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/logging"
)

func (a *app) provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the hits table when the store needs one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.setup(cmd)
			if err != nil {
				return err
			}

			store, err := counter.New(cmd.Context(), cfg.Store, cfg.AWS)
			if err != nil {
				return err
			}
			defer store.Close()

			p, ok := store.(counter.Provisioner)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "store %q needs no provisioning\n", cfg.Store.Type)
				return nil
			}
			if err := p.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to provision %s: %w", cfg.Store.TableName(), err)
			}

			logging.Info("Hits table ready",
				zap.String("store", cfg.Store.Type),
				zap.String("table", cfg.Store.TableName()),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "table %q is ready\n", cfg.Store.TableName())
			return nil
		},
	}
}
