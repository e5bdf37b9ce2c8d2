package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/praxis/praxis-marketplace-gateway/internal/config"
	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/execution"
	gatewaylog "github.com/praxis/praxis-marketplace-gateway/internal/logger"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
	"github.com/praxis/praxis-marketplace-gateway/internal/mcp"
	"github.com/praxis/praxis-marketplace-gateway/internal/metrics"
	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
	"github.com/praxis/praxis-marketplace-gateway/internal/store"
)

// components holds every long-lived service of one gateway process.
type components struct {
	cfg    *config.AppConfig
	logger *logrus.Logger

	events       *bus.EventBus
	metrics      *metrics.MetricsCollector
	connections  *mcp.ConnectionCache
	marketplace  *marketplace.Client
	explorer     *discovery.Explorer
	requirements *payment.RequirementsBuilder
	payments     *payment.Service
	orchestrator *execution.Orchestrator
	store        store.Store
	validator    *payment.Validator
}

// buildComponents wires the gateway. The transaction store is only opened
// when withStore is set.
func buildComponents(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, withStore bool) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	c.events = bus.NewEventBus(logger)
	logger.AddHook(gatewaylog.NewEventBusLogHook(c.events, cfg.Gateway.Name, logrus.WarnLevel))

	c.metrics = metrics.NewMetricsCollector(logger, cfg.Gateway.Name, cfg.Gateway.Version)

	dialer, err := mcp.NewDialerFromNames(cfg.MCP.Transports, mcp.ClientInfo{
		Name:           cfg.MCP.ClientName,
		Version:        cfg.MCP.ClientVersion,
		ConnectTimeout: cfg.MCP.ConnectTimeout,
		RequestTimeout: cfg.MCP.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure MCP transports: %w", err)
	}
	c.connections = mcp.NewConnectionCache(dialer, logger)
	c.metrics.RegisterGaugeFunc("praxis_gateway_cached_connections", "Open tool-server sessions", func() float64 {
		return float64(c.connections.Len())
	})

	c.marketplace = marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.Timeout, logger)
	c.marketplace.SetHealthCheckTimeout(cfg.Marketplace.HealthCheckTimeout)

	c.explorer = discovery.NewExplorer(c.connections, logger,
		discovery.WithToolNames(cfg.Discovery.PriceListingTools, cfg.Discovery.PaymentMethodsTool),
		discovery.WithEventBus(c.events),
		discovery.WithRecorder(c.metrics),
	)

	c.requirements = payment.NewRequirementsBuilder(
		cfg.Payment.Resource,
		cfg.Payment.Description,
		cfg.Payment.MimeType,
		cfg.Payment.MaxTimeoutSeconds,
	)
	facilitatorOpts := []payment.FacilitatorOption{
		payment.WithHTTPClient(&http.Client{Timeout: cfg.Payment.FacilitatorTimeout}),
	}
	if cfg.Payment.APIKeyID != "" {
		facilitatorOpts = append(facilitatorOpts, payment.WithAPIKey(cfg.Payment.APIKeyID, cfg.Payment.APIKeySecret))
	}
	facilitator, err := payment.NewHTTPFacilitator(cfg.Payment.FacilitatorURL, logger, facilitatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure facilitator: %w", err)
	}
	c.payments = payment.NewService(c.requirements, facilitator, logger)

	c.orchestrator = execution.NewOrchestrator(c.connections, c.payments, logger,
		execution.WithPriceListingTools(cfg.Discovery.PriceListingTools),
		execution.WithPurchaseTool(cfg.Discovery.PurchaseTool),
		execution.WithEventBus(c.events),
		execution.WithRecorder(c.metrics),
	)

	if withStore {
		st, err := openStore(ctx, cfg.Database, logger)
		if err != nil {
			c.close()
			return nil, err
		}
		c.store = st
		c.validator = payment.NewValidator(c.payments, st, c.events, c.metrics, logger)
	}

	return c, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (store.Store, error) {
	if cfg.URL == "" {
		logger.Info("No database configured, keeping transactions in memory")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("failed to prepare transactions table: %w", err)
	}
	logger.Info("Transactions stored in PostgreSQL")
	return pg, nil
}

func (c *components) close() {
	if c.connections != nil {
		if err := c.connections.CloseAll(); err != nil {
			c.logger.Warnf("Failed to close tool-server sessions: %v", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warnf("Failed to close transaction store: %v", err)
		}
	}
	if c.events != nil {
		c.events.Stop()
	}
}
