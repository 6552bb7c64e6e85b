package ims

import (
	"context"
	"fmt"
	"time"
)

// The incident mutations below are part of the client's contract but the
// server endpoints for them do not exist yet. Each validates its
// arguments, waits Config.MutationDelay, and fails with ErrNotImplemented.
// A call that returns an error had no effect.

// SetIncidentState changes the state of an incident.
func (c *Client) SetIncidentState(ctx context.Context, eventID string, number int, state IncidentState) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	if _, err := ParseIncidentState(string(state)); err != nil {
		return err
	}
	return c.notImplemented(ctx, "set incident state")
}

// SetIncidentPriority changes the priority of an incident.
func (c *Client) SetIncidentPriority(ctx context.Context, eventID string, number int, priority int) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	if priority < MinPriority || priority > MaxPriority {
		return fmt.Errorf("ims: priority out of range: %d", priority)
	}
	return c.notImplemented(ctx, "set incident priority")
}

// SetIncidentSummary changes the summary of an incident.
func (c *Client) SetIncidentSummary(ctx context.Context, eventID string, number int, summary string) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	return c.notImplemented(ctx, "set incident summary")
}

// SetIncidentLocationName changes the name of an incident's location.
func (c *Client) SetIncidentLocationName(ctx context.Context, eventID string, number int, name string) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	return c.notImplemented(ctx, "set incident location name")
}

// SetIncidentLocationDescription changes the description of an incident's location.
func (c *Client) SetIncidentLocationDescription(ctx context.Context, eventID string, number int, description string) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	return c.notImplemented(ctx, "set incident location description")
}

// SetIncidentLocationConcentric changes the concentric street of an incident's location.
func (c *Client) SetIncidentLocationConcentric(ctx context.Context, eventID string, number int, streetID string) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	return c.notImplemented(ctx, "set incident location concentric street")
}

// SetIncidentLocationRadialHour changes the radial hour of an incident's location.
func (c *Client) SetIncidentLocationRadialHour(ctx context.Context, eventID string, number int, hour int) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	if !ValidRadialHour(hour) {
		return fmt.Errorf("ims: radial hour out of range: %d", hour)
	}
	return c.notImplemented(ctx, "set incident location radial hour")
}

// SetIncidentLocationRadialMinute changes the radial minute of an incident's location.
func (c *Client) SetIncidentLocationRadialMinute(ctx context.Context, eventID string, number int, minute int) error {
	if err := checkIncidentRef(eventID, number); err != nil {
		return err
	}
	if !ValidRadialMinute(minute) {
		return fmt.Errorf("ims: radial minute not a quarter hour: %d", minute)
	}
	return c.notImplemented(ctx, "set incident location radial minute")
}

func checkIncidentRef(eventID string, number int) error {
	if eventID == "" {
		return fmt.Errorf("%w: event id", ErrMissingArgument)
	}
	if number < 1 {
		return fmt.Errorf("%w: incident number", ErrMissingArgument)
	}
	return nil
}

func (c *Client) notImplemented(ctx context.Context, operation string) error {
	timer := time.NewTimer(c.config.MutationDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", ErrNotImplemented, operation)
}
