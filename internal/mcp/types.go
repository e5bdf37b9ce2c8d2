package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Connection is a live session with one remote tool server.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect() error
	CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
	ListTools(ctx context.Context) (interface{}, error)
	URL() string
	Transport() string
}

// ClientInfo identifies the gateway in the MCP initialize handshake.
type ClientInfo struct {
	Name           string
	Version        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

func DefaultClientInfo() ClientInfo {
	return ClientInfo{
		Name:           "praxis-marketplace-gateway",
		Version:        "1.0.0",
		ConnectTimeout: 30 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

var (
	ErrNotConnected     = errors.New("connection not established")
	ErrNoTransports     = errors.New("no transports configured")
	ErrUnknownTransport = errors.New("unknown transport")
)

// ConnectError reports a failed handshake for one transport variant.
type ConnectError struct {
	URL       string
	Transport string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s over %s: %v", e.URL, e.Transport, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
