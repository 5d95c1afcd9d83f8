package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/config"
	internalconfig "github.com/wudi/hitcounter/internal/config"
	"github.com/wudi/hitcounter/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// app carries state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	// A missing .env is not an error.
	godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "hitcounter",
		Short:         "Counting proxy: records a hit per path, then forwards to the downstream handler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("HITCOUNTER_CONFIG"),
		"path to configuration file (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		a.serveCmd(),
		a.lambdaCmd(),
		a.hitsCmd(),
		a.provisionCmd(),
		a.validateCmd(),
		versionCmd(),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}

// load reads the configuration once per process.
func (a *app) load() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := internalconfig.NewLoader().Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	return cfg, nil
}

// setup loads the configuration and installs the global logger.
func (a *app) setup(_ *cobra.Command) (*config.Config, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetGlobal(logger)

	logging.Debug("Configuration loaded",
		zap.String("config", a.configPath),
		zap.String("store", cfg.Store.Type),
		zap.String("downstream", cfg.Downstream.Type),
	)
	return cfg, nil
}
