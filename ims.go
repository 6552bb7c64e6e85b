package ims

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aadithya-v/ims/store"
)

// Client is a caching, authenticating client for an IMS server.
// Client is safe for concurrent use.
type Client struct {
	config  Config
	kv      store.Store
	ownsKV  bool
	cache   *Cache
	session *Session
	fetcher *fetcher
	metrics *Metrics
	logger  *zap.Logger

	// group coalesces concurrent revalidations of the same cache key.
	group singleflight.Group

	mu        sync.Mutex
	incidents map[string]*incidentSet
}

// New creates a new Client with the given configuration.
// If Store is not provided, a SQLite store at DatabasePath is created and
// closed by Close. Stored credentials are loaded before New returns.
func New(cfg Config) (*Client, error) {
	if cfg.BagURL == "" {
		return nil, fmt.Errorf("%w: bag URL", ErrMissingArgument)
	}
	cfg.applyDefaults()

	c := &Client{
		config:    cfg,
		logger:    cfg.Logger,
		incidents: make(map[string]*incidentSet),
	}

	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	c.metrics = metrics

	// Initialize store (default: SQLite)
	if cfg.Store != nil {
		c.kv = cfg.Store
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("ims: failed to initialize SQLite store: %w", err)
		}
		c.kv = sqliteStore
		c.ownsKV = true
	}

	c.cache = NewCache(c.kv, cfg.Now)

	session, err := newSession(context.Background(), c.kv, cfg.Now, c.logger)
	if err != nil {
		c.closeStore()
		return nil, err
	}
	c.session = session

	c.fetcher = &fetcher{
		client:    cfg.HTTPClient,
		session:   session,
		metrics:   metrics,
		logger:    c.logger,
		userAgent: cfg.UserAgent,
	}

	return c, nil
}

// Close releases the store if the client created it.
// A caller-supplied Store is left open.
func (c *Client) Close() error {
	if err := c.closeStore(); err != nil {
		return fmt.Errorf("ims: failed to close store: %w", err)
	}
	return nil
}

func (c *Client) closeStore() error {
	if !c.ownsKV || c.kv == nil {
		return nil
	}
	err := c.kv.Close()
	c.kv = nil
	return err
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// OnSessionChange registers fn to be called after every login, logout
// or credentials rejection.
func (c *Client) OnSessionChange(fn func()) {
	c.session.OnChange(fn)
}

// Metrics returns the client's collectors.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}
