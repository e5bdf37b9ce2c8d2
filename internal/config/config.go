package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/praxis/praxis-marketplace-gateway/pkg/utils"
)

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(path string, logger *logrus.Logger) (*AppConfig, error) {
	if logger == nil {
		logger = logrus.New()
	}
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("Configuration file %s not found, using defaults", path)
		applyEnvironmentOverrides(config)
		if err := validateConfig(config); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(utils.ExpandEnvVars(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *AppConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateConfig checks if the configuration is valid
func validateConfig(config *AppConfig) error {
	if config.Gateway.Name == "" {
		return fmt.Errorf("gateway name cannot be empty")
	}

	if config.HTTP.Enabled && (config.HTTP.Port <= 0 || config.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", config.HTTP.Port)
	}

	if err := validateURL("marketplace.base_url", config.Marketplace.BaseURL); err != nil {
		return err
	}
	if err := validateURL("payment.facilitator_url", config.Payment.FacilitatorURL); err != nil {
		return err
	}

	if len(config.MCP.Transports) == 0 {
		return fmt.Errorf("mcp.transports must list at least one transport")
	}
	for _, transport := range config.MCP.Transports {
		if transport != TransportStreamableHTTP && transport != TransportSSE {
			return fmt.Errorf("mcp transport must be '%s' or '%s', got '%s'", TransportStreamableHTTP, TransportSSE, transport)
		}
	}

	if config.Discovery.MaxServers <= 0 {
		return fmt.Errorf("discovery.max_servers must be positive")
	}
	if len(config.Discovery.PriceListingTools) == 0 {
		return fmt.Errorf("discovery.price_listing_tools cannot be empty")
	}
	if config.Discovery.PaymentMethodsTool == "" || config.Discovery.PurchaseTool == "" {
		return fmt.Errorf("discovery.payment_methods_tool and discovery.purchase_tool are required")
	}

	if config.Payment.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("payment.max_timeout_seconds must be positive")
	}
	if (config.Payment.APIKeyID == "") != (config.Payment.APIKeySecret == "") {
		return fmt.Errorf("payment.api_key_id and payment.api_key_secret must be set together")
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got '%s'", field, raw)
	}
	return nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func applyEnvironmentOverrides(config *AppConfig) {
	if name := os.Getenv("GATEWAY_NAME"); name != "" {
		config.Gateway.Name = name
	}

	config.HTTP.Enabled = utils.BoolFromEnv("HTTP_ENABLED", config.HTTP.Enabled)
	config.HTTP.Port = utils.IntFromEnv("HTTP_PORT", config.HTTP.Port)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		config.HTTP.CORSOrigins = splitList(origins)
	}

	if u := os.Getenv("MARKETPLACE_URL"); u != "" {
		config.Marketplace.BaseURL = u
	}
	config.Marketplace.Timeout = utils.DurationFromEnv("MARKETPLACE_TIMEOUT", config.Marketplace.Timeout)

	if transports := os.Getenv("MCP_TRANSPORTS"); transports != "" {
		config.MCP.Transports = splitList(transports)
	}
	config.MCP.ConnectTimeout = utils.DurationFromEnv("MCP_CONNECT_TIMEOUT", config.MCP.ConnectTimeout)

	config.Discovery.MaxServers = utils.IntFromEnv("DISCOVERY_MAX_SERVERS", config.Discovery.MaxServers)

	if u := os.Getenv("FACILITATOR_URL"); u != "" {
		config.Payment.FacilitatorURL = u
	}
	if id := os.Getenv("FACILITATOR_API_KEY_ID"); id != "" {
		config.Payment.APIKeyID = id
	}
	if secret := os.Getenv("FACILITATOR_API_KEY_SECRET"); secret != "" {
		config.Payment.APIKeySecret = secret
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Database.URL = dsn
	}

	config.Metrics.Enabled = utils.BoolFromEnv("METRICS_ENABLED", config.Metrics.Enabled)

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
