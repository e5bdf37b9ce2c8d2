package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/praxis/praxis-marketplace-gateway/internal/api"
	"github.com/praxis/praxis-marketplace-gateway/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger
	logger.Infof("Starting %s %s", cfg.Gateway.Name, cfg.Gateway.Version)

	c, err := buildComponents(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.close()

	if !cfg.HTTP.Enabled {
		logger.Warn("HTTP server disabled, nothing to serve")
		<-ctx.Done()
		return nil
	}

	events := api.NewEventStream(c.events, cfg.HTTP.CORSOrigins, logger)
	go events.Run()
	defer events.Stop()

	deps := api.Dependencies{
		Name:            cfg.Gateway.Name,
		Version:         cfg.Gateway.Version,
		Marketplace:     c.marketplace,
		Explorer:        c.explorer,
		Executor:        c.orchestrator,
		Payments:        c.validator,
		Requirements:    c.requirements,
		Connections:     c.connections,
		Events:          events,
		MaxServers:      cfg.Discovery.MaxServers,
		BuyerPrivateKey: utils.GetEnv("BUYER_PRIVATE_KEY", ""),
		CORSOrigins:     cfg.HTTP.CORSOrigins,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = c.metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	server := api.NewServer(deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.HTTP.Host, cfg.HTTP.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}
	logger.Info("Gateway stopped")
	return nil
}
