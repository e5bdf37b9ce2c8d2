package config

import (
	"time"

	"github.com/praxis/praxis-marketplace-gateway/pkg/utils"
)

// AppConfig is the root configuration of the gateway process.
type AppConfig struct {
	Gateway     GatewayConfig     `yaml:"gateway" json:"gateway"`
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Marketplace MarketplaceConfig `yaml:"marketplace" json:"marketplace"`
	MCP         MCPConfig         `yaml:"mcp" json:"mcp"`
	Discovery   DiscoveryConfig   `yaml:"discovery" json:"discovery"`
	Payment     PaymentConfig     `yaml:"payment" json:"payment"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Logging     utils.LogConfig   `yaml:"logging" json:"logging"`
}

type GatewayConfig struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

type HTTPConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	Host        string   `yaml:"host" json:"host"`
	Port        int      `yaml:"port" json:"port"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// MarketplaceConfig points at the REST listing of registered tool servers.
type MarketplaceConfig struct {
	BaseURL            string        `yaml:"base_url" json:"base_url"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" json:"health_check_timeout"`
}

// MCPConfig controls outbound tool-server sessions.
type MCPConfig struct {
	ClientName     string        `yaml:"client_name" json:"client_name"`
	ClientVersion  string        `yaml:"client_version" json:"client_version"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// Transports lists transport kinds in the order they are attempted.
	Transports []string `yaml:"transports" json:"transports"`
}

type DiscoveryConfig struct {
	MaxServers         int      `yaml:"max_servers" json:"max_servers"`
	PriceListingTools  []string `yaml:"price_listing_tools" json:"price_listing_tools"`
	PaymentMethodsTool string   `yaml:"payment_methods_tool" json:"payment_methods_tool"`
	PurchaseTool       string   `yaml:"purchase_tool" json:"purchase_tool"`
}

type PaymentConfig struct {
	FacilitatorURL     string        `yaml:"facilitator_url" json:"facilitator_url"`
	FacilitatorTimeout time.Duration `yaml:"facilitator_timeout" json:"facilitator_timeout"`
	APIKeyID           string        `yaml:"api_key_id" json:"api_key_id"`
	APIKeySecret       string        `yaml:"api_key_secret" json:"-"`
	MaxTimeoutSeconds  int           `yaml:"max_timeout_seconds" json:"max_timeout_seconds"`
	Resource           string        `yaml:"resource" json:"resource"`
	Description        string        `yaml:"description" json:"description"`
	MimeType           string        `yaml:"mime_type" json:"mime_type"`
}

// DatabaseConfig selects the transaction store. An empty URL keeps records in memory.
type DatabaseConfig struct {
	URL string `yaml:"url" json:"-"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Gateway: GatewayConfig{
			Name:    "praxis-marketplace-gateway",
			Version: "1.0.0",
		},
		HTTP: HTTPConfig{
			Enabled:     true,
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Marketplace: MarketplaceConfig{
			BaseURL:            "http://localhost:3000/api",
			Timeout:            15 * time.Second,
			HealthCheckTimeout: 5 * time.Second,
		},
		MCP: MCPConfig{
			ClientName:     "praxis-marketplace-gateway",
			ClientVersion:  "1.0.0",
			ConnectTimeout: 30 * time.Second,
			RequestTimeout: 60 * time.Second,
			Transports:     []string{TransportStreamableHTTP, TransportSSE},
		},
		Discovery: DiscoveryConfig{
			MaxServers:         20,
			PriceListingTools:  []string{"price-listing", "price_listing", "getPriceListing"},
			PaymentMethodsTool: "payment-methods",
			PurchaseTool:       "make-purchase",
		},
		Payment: PaymentConfig{
			FacilitatorURL:     "https://x402.org/facilitator",
			FacilitatorTimeout: 30 * time.Second,
			MaxTimeoutSeconds:  300,
			Resource:           "https://marketplace.praxis.local/purchase",
			Description:        "Marketplace service purchase",
			MimeType:           "application/json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: utils.DefaultLogConfig(),
	}
}
