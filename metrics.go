package ims

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache outcomes recorded by Metrics.CacheResults.
const (
	outcomeFresh       = "fresh"
	outcomeNotModified = "not_modified"
	outcomeFetched     = "fetched"
	outcomeFailed      = "failed"
)

// Metrics exposes Prometheus collectors for the client.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	CacheResults  *prometheus.CounterVec
	Invalidations prometheus.Counter
}

// NewMetrics constructs the client collectors and registers them with reg.
// Collectors already registered by another client are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ims",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Total number of requests issued to the IMS server partitioned by method, status code and authentication.",
	}, []string{"method", "code", "authenticated"})
	if err := register(reg, &requests); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ims",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Histogram of IMS server request latencies in seconds partitioned by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	if err := register(reg, &duration); err != nil {
		return nil, err
	}

	cacheResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ims",
		Subsystem: "client",
		Name:      "cache_results_total",
		Help:      "Total number of cached resource lookups partitioned by store and outcome.",
	}, []string{"store", "outcome"})
	if err := register(reg, &cacheResults); err != nil {
		return nil, err
	}

	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ims",
		Subsystem: "client",
		Name:      "session_invalidations_total",
		Help:      "Total number of sessions cleared because the server rejected their credentials.",
	})
	if err := register(reg, &invalidations); err != nil {
		return nil, err
	}

	return &Metrics{
		Requests:      requests,
		Duration:      duration,
		CacheResults:  cacheResults,
		Invalidations: invalidations,
	}, nil
}

// register registers *c, replacing it with the existing collector if one
// with the same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}

	already, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return fmt.Errorf("ims: register collector: %w", err)
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return fmt.Errorf("ims: existing collector has unexpected type %T", already.ExistingCollector)
	}
	*c = existing
	return nil
}
