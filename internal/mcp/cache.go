package mcp

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnectionCache keeps at most one live connection per server URL.
// Each GetConnection leases the connection and must be paired with
// ReleaseConnection; the session is disconnected and evicted when the last
// lease is released. Concurrent first requests for the same URL are
// serialized on a per-URL lock so only one of them dials.
type ConnectionCache struct {
	dialer Dialer
	logger *logrus.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	locks   map[string]*urlLock
}

type cacheEntry struct {
	conn  Connection
	users int
}

// urlLock lives in the locks map only while someone waits on or holds it.
type urlLock struct {
	mu   sync.Mutex
	refs int
}

func NewConnectionCache(dialer Dialer, logger *logrus.Logger) *ConnectionCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectionCache{
		dialer:  dialer,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		locks:   make(map[string]*urlLock),
	}
}

// GetConnection leases the cached connection for url, dialing one if absent.
// Cached connections are returned without re-validation.
func (c *ConnectionCache) GetConnection(ctx context.Context, url string) (Connection, error) {
	if conn, ok := c.acquire(url); ok {
		return conn, nil
	}

	c.lockURL(url)
	defer c.unlockURL(url)

	if conn, ok := c.acquire(url); ok {
		return conn, nil
	}

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[url] = &cacheEntry{conn: conn, users: 1}
	c.mu.Unlock()

	return conn, nil
}

// ReleaseConnection ends one lease. The last release disconnects and evicts
// the connection. Unknown URLs are ignored.
func (c *ConnectionCache) ReleaseConnection(url string) error {
	c.mu.Lock()
	entry, ok := c.entries[url]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	entry.users--
	if entry.users > 0 {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, url)
	c.mu.Unlock()

	return c.disconnect(url, entry.conn)
}

// CloseConnection disconnects and evicts one entry regardless of
// outstanding leases. Unknown URLs are ignored.
func (c *ConnectionCache) CloseConnection(url string) error {
	c.mu.Lock()
	entry, ok := c.entries[url]
	delete(c.entries, url)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.disconnect(url, entry.conn)
}

// CloseAll disconnects every cached connection concurrently and empties the
// cache. A failing disconnect does not stop the others; all failures are
// returned joined.
func (c *ConnectionCache) CloseAll() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for url, entry := range entries {
		wg.Add(1)
		go func(url string, conn Connection) {
			defer wg.Done()
			if err := c.disconnect(url, conn); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(url, entry.conn)
	}
	wg.Wait()

	c.logger.Infof("Closed %d cached connections", len(entries))
	return errors.Join(errs...)
}

// Len reports the number of cached connections.
func (c *ConnectionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ConnectionCache) acquire(url string) (Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	entry.users++
	return entry.conn, true
}

func (c *ConnectionCache) disconnect(url string, conn Connection) error {
	if err := conn.Disconnect(); err != nil {
		c.logger.WithField("url", url).Warnf("Failed to disconnect: %v", err)
		return err
	}
	return nil
}

func (c *ConnectionCache) lockURL(url string) {
	c.mu.Lock()
	l, ok := c.locks[url]
	if !ok {
		l = &urlLock{}
		c.locks[url] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
}

func (c *ConnectionCache) unlockURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.locks[url]
	l.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, url)
	}
}
