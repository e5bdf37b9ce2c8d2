package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// RemoteConnection is a Connection backed by an mcp-go client. The concrete
// wire transport is chosen by the constructor.
type RemoteConnection struct {
	url       string
	transport string
	info      ClientInfo
	newClient func(url string) (*client.Client, error)
	logger    *logrus.Logger

	mu     sync.RWMutex
	client *client.Client
	cancel context.CancelFunc
}

// NewStreamableHTTPConnection creates an unconnected session using the
// streamable HTTP transport.
func NewStreamableHTTPConnection(url string, info ClientInfo, logger *logrus.Logger) *RemoteConnection {
	return newRemoteConnection(url, TransportStreamableHTTP, info, logger, func(u string) (*client.Client, error) {
		return client.NewStreamableHttpClient(u)
	})
}

// NewSSEConnection creates an unconnected session using the SSE transport.
func NewSSEConnection(url string, info ClientInfo, logger *logrus.Logger) *RemoteConnection {
	return newRemoteConnection(url, TransportSSE, info, logger, func(u string) (*client.Client, error) {
		return client.NewSSEMCPClient(u)
	})
}

func newRemoteConnection(url, transport string, info ClientInfo, logger *logrus.Logger, newClient func(string) (*client.Client, error)) *RemoteConnection {
	if logger == nil {
		logger = logrus.New()
	}
	defaults := DefaultClientInfo()
	if info.Name == "" {
		info.Name = defaults.Name
	}
	if info.Version == "" {
		info.Version = defaults.Version
	}
	if info.ConnectTimeout <= 0 {
		info.ConnectTimeout = defaults.ConnectTimeout
	}
	if info.RequestTimeout <= 0 {
		info.RequestTimeout = defaults.RequestTimeout
	}

	return &RemoteConnection{
		url:       url,
		transport: transport,
		info:      info,
		newClient: newClient,
		logger:    logger,
	}
}

func (c *RemoteConnection) URL() string       { return c.url }
func (c *RemoteConnection) Transport() string { return c.transport }

// Connect starts the transport and performs the initialize handshake.
// Calling Connect on an established session is a no-op.
func (c *RemoteConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	cli, err := c.newClient(c.url)
	if err != nil {
		return &ConnectError{URL: c.url, Transport: c.transport, Err: fmt.Errorf("failed to create client: %w", err)}
	}

	// The SSE stream lives as long as the session, so it must not inherit the
	// handshake deadline.
	sessionCtx, cancel := context.WithCancel(context.Background())
	if err := cli.Start(sessionCtx); err != nil {
		cancel()
		_ = cli.Close()
		return &ConnectError{URL: c.url, Transport: c.transport, Err: fmt.Errorf("failed to start transport: %w", err)}
	}

	initCtx, initCancel := context.WithTimeout(ctx, c.info.ConnectTimeout)
	defer initCancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    c.info.Name,
		Version: c.info.Version,
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	serverInfo, err := cli.Initialize(initCtx, initRequest)
	if err != nil {
		cancel()
		_ = cli.Close()
		return &ConnectError{URL: c.url, Transport: c.transport, Err: fmt.Errorf("initialize failed: %w", err)}
	}

	c.client = cli
	c.cancel = cancel
	c.logger.WithFields(logrus.Fields{
		"url":       c.url,
		"transport": c.transport,
		"server":    serverInfo.ServerInfo.Name,
	}).Debug("MCP session established")
	return nil
}

// Disconnect closes the session. It is safe to call more than once.
func (c *RemoteConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.cancel()
	c.client = nil
	c.cancel = nil
	if err != nil {
		return fmt.Errorf("failed to close %s session to %s: %w", c.transport, c.url, err)
	}
	return nil
}

// CallTool invokes a remote tool and returns the result as a generic
// {content: [...], isError} envelope.
func (c *RemoteConnection) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	cli, err := c.session()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.info.RequestTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := cli.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed on %s: %w", name, c.url, err)
	}
	return resultEnvelope(result), nil
}

// ListTools returns the tool descriptors advertised by the server.
func (c *RemoteConnection) ListTools(ctx context.Context) (interface{}, error) {
	cli, err := c.session()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.info.RequestTimeout)
	defer cancel()

	result, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %s: %w", c.url, err)
	}

	tools := make([]map[string]interface{}, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		})
	}
	return tools, nil
}

func (c *RemoteConnection) session() (*client.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, fmt.Errorf("%s: %w", c.url, ErrNotConnected)
	}
	return c.client, nil
}

func resultEnvelope(result *mcp.CallToolResult) map[string]interface{} {
	content := make([]interface{}, 0, len(result.Content))
	for _, item := range result.Content {
		switch v := item.(type) {
		case mcp.TextContent:
			content = append(content, map[string]interface{}{"type": "text", "text": v.Text})
		case *mcp.TextContent:
			content = append(content, map[string]interface{}{"type": "text", "text": v.Text})
		case mcp.ImageContent:
			content = append(content, map[string]interface{}{"type": "image", "mimeType": v.MIMEType, "data": v.Data})
		default:
			content = append(content, map[string]interface{}{"type": "unknown"})
		}
	}
	return map[string]interface{}{
		"content": content,
		"isError": result.IsError,
	}
}
