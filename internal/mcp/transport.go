package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TransportFactory builds an unconnected Connection for a server URL.
type TransportFactory struct {
	Name string
	New  func(url string) Connection
}

// Dialer opens a ready-to-use Connection to a server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// FallbackDialer tries each transport in order and returns the first
// connection that completes its handshake.
type FallbackDialer struct {
	transports []TransportFactory
	logger     *logrus.Logger
}

func NewFallbackDialer(logger *logrus.Logger, transports ...TransportFactory) *FallbackDialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &FallbackDialer{
		transports: transports,
		logger:     logger,
	}
}

// NewDialerFromNames maps configured transport names onto mcp-go backed
// factories, preserving their order.
func NewDialerFromNames(names []string, info ClientInfo, logger *logrus.Logger) (*FallbackDialer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	transports := make([]TransportFactory, 0, len(names))
	for _, name := range names {
		switch name {
		case TransportStreamableHTTP:
			transports = append(transports, TransportFactory{Name: name, New: func(url string) Connection {
				return NewStreamableHTTPConnection(url, info, logger)
			}})
		case TransportSSE:
			transports = append(transports, TransportFactory{Name: name, New: func(url string) Connection {
				return NewSSEConnection(url, info, logger)
			}})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
		}
	}
	return NewFallbackDialer(logger, transports...), nil
}

// Dial returns the error of the last transport attempted when every
// transport fails; earlier failures are only logged.
func (d *FallbackDialer) Dial(ctx context.Context, url string) (Connection, error) {
	if len(d.transports) == 0 {
		return nil, ErrNoTransports
	}

	var lastErr error
	for i, transport := range d.transports {
		conn := transport.New(url)
		err := conn.Connect(ctx)
		if err == nil {
			d.logger.WithFields(logrus.Fields{
				"url":       url,
				"transport": transport.Name,
			}).Info("Connected to tool server")
			return conn, nil
		}
		lastErr = err
		if i < len(d.transports)-1 {
			d.logger.WithFields(logrus.Fields{
				"url":       url,
				"transport": transport.Name,
			}).Debugf("Transport failed, falling back: %v", err)
		}
	}
	return nil, lastErr
}
