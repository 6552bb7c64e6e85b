package ims

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event is an event incidents are filed under.
type Event struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e Event) String() string {
	return e.Name
}

// UnmarshalJSON decodes an event, requiring both id and name.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID   *string `json:"id"`
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return invalidField("event", "", err)
	}
	if wire.ID == nil || *wire.ID == "" {
		return missingField("event", "id")
	}
	if wire.Name == nil {
		return missingField("event", "name")
	}

	*e = Event{ID: *wire.ID, Name: *wire.Name}
	return nil
}

func decodeEvents(data []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	if events == nil {
		return nil, missingField("events", "")
	}
	return events, nil
}

// Events returns all events.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	return fetchAndCache(ctx, c, resource{
		name:      EndpointEvents,
		storeName: miscStore,
		key:       EndpointEvents,
		lifetime:  c.config.EventsLifetime,
	}, decodeEvents)
}

// EventWithID returns the event with the given id.
func (c *Client) EventWithID(ctx context.Context, id string) (Event, error) {
	if id == "" {
		return Event{}, fmt.Errorf("%w: event id", ErrMissingArgument)
	}

	events, err := c.Events(ctx)
	if err != nil {
		return Event{}, err
	}

	for _, event := range events {
		if event.ID == id {
			return event, nil
		}
	}
	return Event{}, fmt.Errorf("%w: no event with ID %q", ErrNotFound, id)
}
