package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/praxis/praxis-marketplace-gateway/internal/config"
	"github.com/praxis/praxis-marketplace-gateway/pkg/utils"
)

type rootOptions struct {
	configPath string
	logLevel   string
	envFile    string

	cfg    *config.AppConfig
	logger *logrus.Logger
}

func main() {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Marketplace gateway for paid MCP tool services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", utils.GetEnv("GATEWAY_CONFIG", "configs/gateway.yaml"), "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")

	root.AddCommand(
		newServeCommand(opts),
		newExploreCommand(opts),
		newExecuteCommand(opts),
		newVersionCommand(opts),
	)

	if err := root.Execute(); err != nil {
		logger := opts.logger
		if logger == nil {
			logger = logrus.New()
		}
		logger.Fatalf("Command failed: %v", err)
	}
}

// load reads the dotenv file, the YAML config and the environment, then
// builds the process logger.
func (o *rootOptions) load() error {
	bootstrap := logrus.New()
	bootstrap.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			bootstrap.Warnf("Failed to load %s: %v", o.envFile, err)
		}
	}

	cfg, err := config.LoadConfig(o.configPath, bootstrap)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	o.cfg = cfg
	o.logger = utils.ConfigureLogger(cfg.Logging)
	return nil
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
