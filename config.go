package ims

import (
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aadithya-v/ims/store"
)

// Config contains configuration options for the IMS client.
type Config struct {
	// BagURL is the URL of the bag document that maps endpoint names
	// to URL templates. Required.
	BagURL string `env:"IMS_BAG_URL"`

	// BagLifetime is how long the bag is used before revalidation.
	// Default: 1 hour.
	BagLifetime time.Duration `env:"IMS_BAG_LIFETIME"`

	// EventsLifetime is how long the event list is used before revalidation.
	// Default: 10 minutes.
	EventsLifetime time.Duration `env:"IMS_EVENTS_LIFETIME"`

	// StreetsLifetime is how long the concentric street table is used
	// before revalidation.
	// Default: 10 minutes.
	StreetsLifetime time.Duration `env:"IMS_STREETS_LIFETIME"`

	// IncidentsLifetime is how long an event's incidents are used before
	// revalidation.
	// Default: 5 minutes.
	IncidentsLifetime time.Duration `env:"IMS_INCIDENTS_LIFETIME"`

	// MutationDelay is how long the unimplemented incident mutations wait
	// before failing.
	// Default: 1 second.
	MutationDelay time.Duration `env:"IMS_MUTATION_DELAY"`

	// UserAgent is sent on every request.
	// Default: "ims-client".
	UserAgent string `env:"IMS_USER_AGENT"`

	// HTTPTimeout bounds each exchange when HTTPClient is nil.
	// Default: 30 seconds.
	HTTPTimeout time.Duration `env:"IMS_HTTP_TIMEOUT"`

	// Store is the durable storage backend for credentials and cached
	// resources.
	// Default: SQLite store (creates ims.db in current directory).
	Store store.Store `env:"-"`

	// DatabasePath is the path for the default SQLite database.
	// Only used if Store is nil.
	// Default: "ims.db".
	DatabasePath string `env:"IMS_DATABASE_PATH"`

	// HTTPClient performs the exchanges.
	// Default: an http.Client with HTTPTimeout.
	HTTPClient *http.Client `env:"-"`

	// Logger receives structured logs.
	// Default: zap.NewNop().
	Logger *zap.Logger `env:"-"`

	// Registerer receives the client's Prometheus collectors.
	// Default: prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer `env:"-"`

	// Now is the clock used for every expiration decision.
	// Default: time.Now.
	Now func() time.Time `env:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BagLifetime:       1 * time.Hour,
		EventsLifetime:    10 * time.Minute,
		StreetsLifetime:   10 * time.Minute,
		IncidentsLifetime: 5 * time.Minute,
		MutationDelay:     1 * time.Second,
		UserAgent:         "ims-client",
		HTTPTimeout:       30 * time.Second,
		DatabasePath:      "ims.db",
	}
}

// LoadConfigFromEnv reads the IMS_* environment variables over the defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("ims: parse env: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.BagLifetime <= 0 {
		c.BagLifetime = defaults.BagLifetime
	}
	if c.EventsLifetime <= 0 {
		c.EventsLifetime = defaults.EventsLifetime
	}
	if c.StreetsLifetime <= 0 {
		c.StreetsLifetime = defaults.StreetsLifetime
	}
	if c.IncidentsLifetime <= 0 {
		c.IncidentsLifetime = defaults.IncidentsLifetime
	}
	if c.MutationDelay <= 0 {
		c.MutationDelay = defaults.MutationDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaults.HTTPTimeout
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.HTTPTimeout}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
