package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second

	// maxResponseBytes caps marketplace response bodies.
	maxResponseBytes = 4 << 20
)

var (
	ErrServerNotFound   = errors.New("server not found")
	ErrResponseTooLarge = errors.New("marketplace response too large")
)

// ServerRecord is one tool server as listed by the marketplace.
type ServerRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Verified     bool   `json:"verified"`
	Categories   string `json:"categories"`
	MCPServerURL string `json:"mcpServerUrl"`
}

type Filter struct {
	Name     string
	Category string
}

// Client reads server listings from the marketplace REST API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
	maxBody       int64
	logger        *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		healthTimeout: healthCheckTimeout,
		maxBody:       maxResponseBytes,
		logger:        logger,
	}
}

// SetHealthCheckTimeout bounds ValidateServerURL probes.
func (c *Client) SetHealthCheckTimeout(d time.Duration) {
	if d > 0 {
		c.healthTimeout = d
	}
}

// SearchServers never fails; any error yields an empty list.
func (c *Client) SearchServers(ctx context.Context, filter Filter) []ServerRecord {
	query := url.Values{}
	if filter.Name != "" {
		query.Set("name", filter.Name)
	}
	if filter.Category != "" {
		query.Set("category", filter.Category)
	}
	endpoint := c.baseURL + "/servers"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	raw, status, err := c.get(ctx, endpoint)
	if err != nil {
		c.logger.Warnf("Failed to search marketplace servers: %v", err)
		return []ServerRecord{}
	}
	if status != http.StatusOK {
		c.logger.Warnf("Marketplace search returned status %d", status)
		return []ServerRecord{}
	}

	servers, err := decodeServerList(raw)
	if err != nil {
		c.logger.Warnf("Failed to decode marketplace servers: %v", err)
		return []ServerRecord{}
	}
	c.logger.Debugf("Marketplace returned %d servers", len(servers))
	return servers
}

// decodeServerList accepts a bare array or an {items: [...]} page.
func decodeServerList(raw []byte) ([]ServerRecord, error) {
	var servers []ServerRecord
	if err := json.Unmarshal(raw, &servers); err == nil {
		return servers, nil
	}
	var page struct {
		Items []ServerRecord `json:"items"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		return []ServerRecord{}, nil
	}
	return page.Items, nil
}

func (c *Client) GetServerInfo(ctx context.Context, id string) (*ServerRecord, error) {
	raw, status, err := c.get(ctx, c.baseURL+"/servers/"+url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server %s: %w", id, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrServerNotFound
	case status != http.StatusOK:
		return nil, fmt.Errorf("marketplace returned status %d for server %s", status, id)
	}

	var server ServerRecord
	if err := json.Unmarshal(raw, &server); err != nil {
		return nil, fmt.Errorf("failed to decode server %s: %w", id, err)
	}
	return &server, nil
}

// ValidateServerURL reports whether the URL answers without a server error.
func (c *Client) ValidateServerURL(ctx context.Context, serverURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debugf("Server URL %s unreachable: %v", serverURL, err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, c.maxBody)
	return resp.StatusCode < http.StatusInternalServerError
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read failed: %w", err)
	}
	if int64(len(raw)) > c.maxBody {
		return nil, resp.StatusCode, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, c.maxBody, endpoint)
	}
	return raw, resp.StatusCode, nil
}
