package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/hitcounter/config"
)

func (a *app) validateCmd() *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}

			if printConfig {
				redacted, err := config.RedactConfig(cfg)
				if err != nil {
					return err
				}
				out, err := config.Marshal(redacted)
				if err != nil {
					return err
				}
				cmd.OutOrStdout().Write(out)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration with secrets redacted")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hitcounter %s (built %s)\n", version, buildTime)
		},
	}
}
