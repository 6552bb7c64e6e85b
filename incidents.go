package ims

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// incidentSet is the loaded incident collection of one event.
// It is created on first access and kept for the client's lifetime.
type incidentSet struct {
	mu     sync.Mutex
	loaded bool
	// source is the cached document the collection was decoded from.
	source    []byte
	incidents []Incident
	byNumber  map[int]Incident
	// index is built on first search and dropped whenever the
	// collection is replaced.
	index *searchIndex
}

// incidentSet returns the handle for eventID, creating it on first use.
func (c *Client) incidentSet(eventID string) *incidentSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.incidents[eventID]
	if !ok {
		set = &incidentSet{}
		c.incidents[eventID] = set
	}
	return set
}

// replace installs a newly loaded collection decoded from source.
func (s *incidentSet) replace(incidents []Incident, source []byte) {
	byNumber := make(map[int]Incident, len(incidents))
	for _, incident := range incidents {
		byNumber[incident.Number] = incident
	}

	s.loaded = true
	s.source = source
	s.incidents = incidents
	s.byNumber = byNumber
	s.index = nil
}

// Incidents returns all incidents filed under the event.
func (c *Client) Incidents(ctx context.Context, eventID string) ([]Incident, error) {
	set, err := c.loadIncidents(ctx, eventID)
	if err != nil {
		return nil, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return append([]Incident(nil), set.incidents...), nil
}

// IncidentWithNumber returns one incident of the event.
func (c *Client) IncidentWithNumber(ctx context.Context, eventID string, number int) (Incident, error) {
	set, err := c.loadIncidents(ctx, eventID)
	if err != nil {
		return Incident{}, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	incident, ok := set.byNumber[number]
	if !ok {
		return Incident{}, fmt.Errorf("%w: no incident #%d in event %q", ErrNotFound, number, eventID)
	}
	return incident, nil
}

// loadIncidents revalidates the event's incidents and returns its handle.
// The handle's collection is replaced whenever the cached document differs
// from the one it was built from, including documents written to a shared
// store by another client.
func (c *Client) loadIncidents(ctx context.Context, eventID string) (*incidentSet, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id", ErrMissingArgument)
	}

	incidents, source, err := revalidate(ctx, c, resource{
		name:      EndpointIncidents,
		storeName: incidentsStore,
		key:       eventID,
		params:    map[string]string{"event_id": eventID},
		lifetime:  c.config.IncidentsLifetime,
	}, func(data []byte) ([]Incident, error) {
		incidents, err := decodeIncidents(data)
		if err != nil {
			return nil, err
		}
		for _, incident := range incidents {
			if incident.EventID != eventID {
				return nil, invalidField("incident", "event",
					fmt.Errorf("incident %s listed under event %q", incident, eventID))
			}
		}
		return incidents, nil
	})
	if err != nil {
		return nil, err
	}

	set := c.incidentSet(eventID)
	set.mu.Lock()
	defer set.mu.Unlock()

	if !set.loaded || !bytes.Equal(set.source, source) {
		set.replace(incidents, source)
	}
	return set, nil
}

// Search returns the event's incidents matching query, ordered by number.
// The event's incidents are loaded first if needed.
func (c *Client) Search(ctx context.Context, eventID, query string) ([]Incident, error) {
	set, err := c.loadIncidents(ctx, eventID)
	if err != nil {
		return nil, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	if set.index == nil {
		set.index = newSearchIndex(set.incidents)
		c.logger.Debug("built search index", zap.String("event", eventID), zap.Int("incidents", len(set.incidents)))
	}

	numbers := set.index.search(query)
	results := make([]Incident, 0, len(numbers))
	for _, number := range numbers {
		incident, ok := set.byNumber[number]
		if !ok {
			return nil, fmt.Errorf("ims: search index out of step with incidents of event %q: #%d", eventID, number)
		}
		results = append(results, incident)
	}
	return results, nil
}
