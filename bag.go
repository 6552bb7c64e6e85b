package ims

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Endpoint names used by the client.
const (
	EndpointAuth      = "auth"
	EndpointEvents    = "events"
	EndpointStreets   = "concentric_streets"
	EndpointIncidents = "incidents"

	endpointBag = "bag"
)

// Bag maps logical endpoint names to URL templates.
type Bag struct {
	URLs map[string]string `json:"urls"`
}

func decodeBag(data []byte) (*Bag, error) {
	var bag Bag
	if err := json.Unmarshal(data, &bag); err != nil {
		return nil, invalidField("bag", "", err)
	}
	if bag.URLs == nil {
		return nil, missingField("bag", "urls")
	}
	return &bag, nil
}

// Bag returns the bag, fetching it from the configured bag URL when the
// cached copy has expired.
func (c *Client) Bag(ctx context.Context) (*Bag, error) {
	return fetchAndCache(ctx, c, resource{
		name:      endpointBag,
		storeName: miscStore,
		key:       endpointBag,
		lifetime:  c.config.BagLifetime,
	}, decodeBag)
}

// ResolveURL returns the URL for the named endpoint with every {param}
// placeholder replaced by its value from params.
func (c *Client) ResolveURL(ctx context.Context, endpoint string, params map[string]string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("%w: endpoint name", ErrMissingArgument)
	}

	bag, err := c.Bag(ctx)
	if err != nil {
		return "", err
	}

	template, ok := bag.URLs[endpoint]
	if !ok || template == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}

	expanded, err := expandURL(template, params)
	if err != nil {
		return "", err
	}

	// Bag URLs may be relative to the bag itself.
	base, err := url.Parse(c.config.BagURL)
	if err != nil {
		return "", fmt.Errorf("ims: invalid bag URL %q: %w", c.config.BagURL, err)
	}
	ref, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("ims: invalid URL for endpoint %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}

var placeholder = regexp.MustCompile(`\{[^{}]*\}`)

// expandURL substitutes params into template. Values are path-escaped.
func expandURL(template string, params map[string]string) (string, error) {
	expanded := template
	for name, value := range params {
		if value == "" {
			return "", fmt.Errorf("%w: no value for %q in %s", ErrUnresolvedParameter, name, template)
		}
		expanded = strings.ReplaceAll(expanded, "{"+name+"}", url.PathEscape(value))
	}

	if left := placeholder.FindString(expanded); left != "" {
		return "", fmt.Errorf("%w: %s in %s", ErrUnresolvedParameter, left, expanded)
	}
	if strings.ContainsAny(expanded, "{}") {
		return "", fmt.Errorf("%w: unbalanced brace in %s", ErrUnresolvedParameter, expanded)
	}
	return expanded, nil
}
