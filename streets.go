package ims

import (
	"context"
	"encoding/json"
	"fmt"
)

// ConcentricStreets maps event id to street id to street name.
type ConcentricStreets map[string]map[string]string

func decodeConcentricStreets(data []byte) (ConcentricStreets, error) {
	var streets ConcentricStreets
	if err := json.Unmarshal(data, &streets); err != nil {
		return nil, invalidField("concentric streets", "", err)
	}
	if streets == nil {
		return nil, missingField("concentric streets", "")
	}
	return streets, nil
}

// AllConcentricStreets returns the concentric street table for every event.
func (c *Client) AllConcentricStreets(ctx context.Context) (ConcentricStreets, error) {
	return fetchAndCache(ctx, c, resource{
		name:      EndpointStreets,
		storeName: miscStore,
		key:       EndpointStreets,
		lifetime:  c.config.StreetsLifetime,
	}, decodeConcentricStreets)
}

// ConcentricStreets returns street id to street name for one event.
// Returns ErrNotFound if the table has no entry for the event.
func (c *Client) ConcentricStreets(ctx context.Context, eventID string) (map[string]string, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id", ErrMissingArgument)
	}

	streets, err := c.AllConcentricStreets(ctx)
	if err != nil {
		return nil, err
	}

	forEvent, ok := streets[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: no concentric streets for event %q", ErrNotFound, eventID)
	}
	return forEvent, nil
}
