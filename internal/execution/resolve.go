package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
)

var ErrServiceNotFound = errors.New("service not found")

// ServiceExplorer enriches the listings of a set of servers.
type ServiceExplorer interface {
	ExploreAndEnrichServices(ctx context.Context, servers []marketplace.ServerRecord, opts discovery.ExploreOptions) *discovery.ServiceRegistry
}

// ResolveService explores the request's server directly and returns the
// requested service, for callers that did not keep a catalog.
func ResolveService(ctx context.Context, explorer ServiceExplorer, req ExecutionRequest) (*discovery.EnrichedService, error) {
	if req.ServerURL == "" {
		return nil, errors.New("serverUrl is required")
	}
	registry := explorer.ExploreAndEnrichServices(ctx, []marketplace.ServerRecord{{
		ID:           req.ServerID,
		Name:         req.ServerURL,
		MCPServerURL: req.ServerURL,
	}}, discovery.ExploreOptions{UnsafeDirectAccess: true})

	if svc, ok := registry.FindService(req.ServiceID, req.ServerURL); ok {
		return svc, nil
	}
	if len(registry.Metadata.Errors) > 0 {
		return nil, fmt.Errorf("failed to explore %s: %s", req.ServerURL, registry.Metadata.Errors[0].Error)
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrServiceNotFound, req.ServiceID, req.ServerURL)
}
