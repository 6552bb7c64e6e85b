package ims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Cache store names. Singleton resources share miscStore; incident
// collections are keyed by event id in incidentsStore.
const (
	miscStore      = "ims"
	incidentsStore = "incidents"
)

// resource identifies a cached server document.
type resource struct {
	// name is the bag endpoint name of the resource.
	name      string
	storeName string
	key       string
	params    map[string]string
	lifetime  time.Duration
}

// fetchAndCache returns the current value of r, revalidating against the
// server when the cached copy has expired.
func fetchAndCache[T any](ctx context.Context, c *Client, r resource, decode func([]byte) (T, error)) (T, error) {
	value, _, err := revalidate(ctx, c, r, decode)
	return value, err
}

type revalidated[T any] struct {
	value  T
	source []byte
}

// revalidate is fetchAndCache that also returns the cached document the
// value was decoded from. Concurrent calls for the same cache key share
// one lookup.
func revalidate[T any](ctx context.Context, c *Client, r resource, decode func([]byte) (T, error)) (T, []byte, error) {
	v, err, _ := c.group.Do(r.storeName+"/"+r.key, func() (any, error) {
		value, source, outcome, err := load(ctx, c, r, decode)
		if err != nil {
			c.metrics.CacheResults.WithLabelValues(r.storeName, outcomeFailed).Inc()
			return nil, err
		}
		c.metrics.CacheResults.WithLabelValues(r.storeName, outcome).Inc()
		return revalidated[T]{value: value, source: source}, nil
	})
	if err != nil {
		var zero T
		return zero, nil, err
	}

	result := v.(revalidated[T])
	return result.value, result.source, nil
}

// load returns the value of r, the compact document it was decoded from,
// and how it was obtained.
func load[T any](ctx context.Context, c *Client, r resource, decode func([]byte) (T, error)) (T, []byte, string, error) {
	var zero T
	logger := c.logger.With(zap.String("resource", r.name), zap.String("key", r.key))

	entry, err := c.cache.Get(ctx, r.storeName, r.key)
	if err != nil {
		return zero, nil, "", err
	}

	if !entry.Expired {
		value, err := decode(entry.Value)
		if err == nil {
			logger.Debug("retrieved from unexpired cache")
			return value, entry.Value, outcomeFresh, nil
		}
		// Refetch unconditionally, as if nothing were cached.
		logger.Warn("ignoring undecodable cached value", zap.Error(err))
		entry = Entry{Expired: true}
	}

	// The bag's own URL comes from configuration, not from the bag.
	url := c.config.BagURL
	if r.name != endpointBag {
		url, err = c.ResolveURL(ctx, r.name, r.params)
		if err != nil {
			return zero, nil, "", err
		}
	}

	resp, err := c.fetcher.fetchJSON(ctx, url, jsonRequest{Validator: entry.Validator})
	if err != nil {
		return zero, nil, "", err
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if entry.Value == nil {
			return zero, nil, "", fmt.Errorf("%w: %s from %s", ErrNotModifiedWithoutCache, r.name, url)
		}
		value, err := decode(entry.Value)
		if err != nil {
			return zero, nil, "", fmt.Errorf("ims: invalid cached %s: %w", r.name, err)
		}
		// Same content, new lifetime.
		if err := c.cache.Put(ctx, r.storeName, r.key, entry.Value, entry.Validator, r.lifetime); err != nil {
			return zero, nil, "", err
		}
		logger.Debug("retrieved from cache after revalidation", zap.String("etag", entry.Validator))
		return value, entry.Value, outcomeNotModified, nil

	case !isSuccess(resp.StatusCode):
		return zero, nil, "", &ResponseError{
			Resource:   r.name,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, nil, "", fmt.Errorf("ims: failed to read %s from %s: %w", r.name, url, err)
	}
	value, err := decode(body)
	if err != nil {
		return zero, nil, "", fmt.Errorf("ims: failed to retrieve %s from %s: %w", r.name, url, err)
	}

	// Stored compact so the document reads back byte for byte.
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return zero, nil, "", fmt.Errorf("ims: failed to retrieve %s from %s: %w", r.name, url, err)
	}
	if err := c.cache.Put(ctx, r.storeName, r.key, compact.Bytes(), resp.Header.Get("ETag"), r.lifetime); err != nil {
		return zero, nil, "", err
	}
	logger.Debug("retrieved from server", zap.String("url", url))
	return value, compact.Bytes(), outcomeFetched, nil
}
