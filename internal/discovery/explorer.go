package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
	"github.com/praxis/praxis-marketplace-gateway/internal/mcp"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoPriceListing        = errors.New("no price listing available")
	ErrInvalidPaymentMethods = errors.New("invalid payment methods response")
	ErrMissingServerURL      = errors.New("missing server URL")
)

// ConnectionProvider leases cached tool-server connections. Every successful
// GetConnection is paired with one ReleaseConnection.
type ConnectionProvider interface {
	GetConnection(ctx context.Context, url string) (mcp.Connection, error)
	ReleaseConnection(url string) error
}

// ExplorationRecorder receives the totals of each exploration run.
type ExplorationRecorder interface {
	RecordExploration(serversExplored, servicesFound, errors int, unsafeDirectAccess bool)
}

type ExploreOptions struct {
	Category           string
	MaxServers         int
	UnsafeDirectAccess bool
}

type Explorer struct {
	connections        ConnectionProvider
	priceListingTools  []string
	paymentMethodsTool string
	events             *bus.EventBus
	recorder           ExplorationRecorder
	logger             *logrus.Logger
}

type ExplorerOption func(*Explorer)

func WithToolNames(priceListing []string, paymentMethods string) ExplorerOption {
	return func(e *Explorer) {
		if len(priceListing) > 0 {
			e.priceListingTools = priceListing
		}
		if paymentMethods != "" {
			e.paymentMethodsTool = paymentMethods
		}
	}
}

func WithEventBus(events *bus.EventBus) ExplorerOption {
	return func(e *Explorer) { e.events = events }
}

func WithRecorder(recorder ExplorationRecorder) ExplorerOption {
	return func(e *Explorer) { e.recorder = recorder }
}

func NewExplorer(connections ConnectionProvider, logger *logrus.Logger, opts ...ExplorerOption) *Explorer {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Explorer{
		connections:        connections,
		priceListingTools:  DefaultPriceListingTools,
		paymentMethodsTool: DefaultPaymentMethodsTool,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Explorer) PriceListingTools() []string {
	return append([]string(nil), e.priceListingTools...)
}

type serverOutcome struct {
	services []EnrichedService
	err      error
}

// ExploreAndEnrichServices queries every selected server concurrently and
// merges their listings. A failing server adds one entry to the registry's
// errors and never aborts the others.
func (e *Explorer) ExploreAndEnrichServices(ctx context.Context, servers []marketplace.ServerRecord, opts ExploreOptions) *ServiceRegistry {
	selected := e.selectServers(servers, opts)
	e.logger.Infof("🔍 Exploring %d tool servers (category=%q, direct=%t)", len(selected), opts.Category, opts.UnsafeDirectAccess)

	outcomes := make([]serverOutcome, len(selected))
	var wg sync.WaitGroup
	for i := range selected {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			services, err := e.exploreServer(ctx, selected[i])
			outcomes[i] = serverOutcome{services: services, err: err}
		}(i)
	}
	wg.Wait()

	registry := &ServiceRegistry{
		TotalServersExplored: len(selected),
		Category:             opts.Category,
		Services:             []EnrichedService{},
		Metadata: RegistryMetadata{
			Errors: []ExplorationError{},
		},
	}
	for i, outcome := range outcomes {
		if outcome.err != nil {
			registry.Metadata.Errors = append(registry.Metadata.Errors, ExplorationError{
				ServerName: selected[i].Name,
				Error:      outcome.err.Error(),
			})
			continue
		}
		registry.Services = append(registry.Services, outcome.services...)
		registry.TotalServicesFound += len(outcome.services)
	}

	if opts.Category != "" {
		filtered := make([]EnrichedService, 0, len(registry.Services))
		for _, svc := range registry.Services {
			if svc.Category == opts.Category {
				filtered = append(filtered, svc)
			}
		}
		registry.Services = filtered
	}
	registry.Metadata.ExploredAt = time.Now().UTC()

	e.logger.WithFields(logrus.Fields{
		"servers":  registry.TotalServersExplored,
		"services": registry.TotalServicesFound,
		"errors":   len(registry.Metadata.Errors),
	}).Info("Service exploration finished")

	if e.recorder != nil {
		e.recorder.RecordExploration(registry.TotalServersExplored, registry.TotalServicesFound, len(registry.Metadata.Errors), opts.UnsafeDirectAccess)
	}
	if e.events != nil {
		e.events.PublishServicesExplored(registry.TotalServersExplored, registry.TotalServicesFound, len(registry.Metadata.Errors), opts.Category)
	}

	return registry
}

func (e *Explorer) selectServers(servers []marketplace.ServerRecord, opts ExploreOptions) []marketplace.ServerRecord {
	if opts.UnsafeDirectAccess {
		return servers
	}

	selected := servers
	if opts.Category != "" {
		needle := strings.ToLower(opts.Category)
		selected = make([]marketplace.ServerRecord, 0, len(servers))
		for _, server := range servers {
			if strings.Contains(strings.ToLower(server.Categories), needle) ||
				strings.Contains(strings.ToLower(server.Description), needle) {
				selected = append(selected, server)
			}
		}
	}

	maxServers := opts.MaxServers
	if maxServers <= 0 {
		maxServers = DefaultMaxServers
	}
	if len(selected) > maxServers {
		selected = selected[:maxServers]
	}
	return selected
}

func (e *Explorer) exploreServer(ctx context.Context, server marketplace.ServerRecord) (services []EnrichedService, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while exploring server: %v", r)
		}
	}()

	if strings.TrimSpace(server.MCPServerURL) == "" {
		return nil, ErrMissingServerURL
	}
	log := e.logger.WithFields(logrus.Fields{"server": server.Name, "url": server.MCPServerURL})

	conn, err := e.connections.GetConnection(ctx, server.MCPServerURL)
	if err != nil {
		log.Warnf("Failed to connect to tool server: %v", err)
		return nil, err
	}
	defer func() {
		if closeErr := e.connections.ReleaseConnection(server.MCPServerURL); closeErr != nil {
			log.Debugf("Failed to release connection: %v", closeErr)
		}
	}()

	items, err := FetchPriceListing(ctx, conn, e.priceListingTools, e.logger)
	if err != nil {
		return nil, err
	}
	methods, err := e.fetchPaymentMethods(ctx, conn)
	if err != nil {
		return nil, err
	}

	info := ServerInfo{
		URL:      server.MCPServerURL,
		ID:       server.ID,
		Name:     server.Name,
		Verified: server.Verified,
		Category: server.Categories,
	}
	category := PrimaryCategory(server.Categories)

	services = make([]EnrichedService, 0, len(items))
	for _, item := range items {
		item.normalize()
		services = append(services, EnrichedService{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			Params:      item.Params,
			ServerInfo:  info,
			PaymentInfo: resolvePaymentInfo(item.Price.PaymentMethod, methods),
			Category:    category,
		})
	}
	log.Debugf("Enriched %d services", len(services))
	return services, nil
}

// FetchPriceListing tries each tool name in order and returns the items of
// the first response shaped like {items: [...]}.
func FetchPriceListing(ctx context.Context, conn mcp.Connection, toolNames []string, logger *logrus.Logger) ([]RawServiceItem, error) {
	var failures []string
	for _, name := range toolNames {
		raw, err := conn.CallTool(ctx, name, map[string]interface{}{})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if mcp.IsToolError(raw) {
			failures = append(failures, fmt.Sprintf("%s: tool returned an error", name))
			continue
		}

		parsed := mcp.ParseToolResult(raw)
		if err := validateShape(priceListingSchema, parsed); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		var listing struct {
			Items []RawServiceItem `json:"items"`
		}
		if err := remarshal(parsed, &listing); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if logger != nil {
			logger.Debugf("Price listing served by tool %s (%d items)", name, len(listing.Items))
		}
		return listing.Items, nil
	}

	return nil, fmt.Errorf("%w: tried %s (%s)", ErrNoPriceListing, strings.Join(toolNames, ", "), strings.Join(failures, "; "))
}

func (e *Explorer) fetchPaymentMethods(ctx context.Context, conn mcp.Connection) ([]PaymentMethodRecord, error) {
	raw, err := conn.CallTool(ctx, e.paymentMethodsTool, map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment methods: %w", err)
	}

	parsed := mcp.ParseToolResult(raw)
	if err := validateShape(paymentMethodsSchema, parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentMethods, err)
	}

	var methods []PaymentMethodRecord
	if err := remarshal(parsed, &methods); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentMethods, err)
	}
	return methods, nil
}

// resolvePaymentInfo picks the first row whose tag matches exactly. With no
// match the wallet stays empty and the service is not execution-ready.
func resolvePaymentInfo(paymentMethod string, methods []PaymentMethodRecord) PaymentInfo {
	for _, method := range methods {
		if method.PaymentMethod == paymentMethod {
			return PaymentInfo{WalletAddress: strings.TrimSpace(method.WalletAddress), PaymentMethod: method.PaymentMethod}
		}
	}
	return PaymentInfo{PaymentMethod: paymentMethod}
}

func remarshal(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
