package ims

import (
	"encoding/json"
	"fmt"
)

// Location is where an incident takes place. Address fields are
// optional; RadialHour and RadialMinute are nil when unknown.
type Location struct {
	Type        string
	Name        string
	Description string
	// Concentric is a street id from the event's concentric street table.
	Concentric   string
	RadialHour   *int
	RadialMinute *int
}

type locationJSON struct {
	Type         *string `json:"type"`
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	RadialHour   *int    `json:"radial_hour"`
	RadialMinute *int    `json:"radial_minute"`
	Concentric   *string `json:"concentric"`
}

// ValidRadialHour reports whether hour is a clock hour, 1 through 12.
func ValidRadialHour(hour int) bool {
	return hour >= 1 && hour <= 12
}

// ValidRadialMinute reports whether minute is 0, 15, 30 or 45.
func ValidRadialMinute(minute int) bool {
	switch minute {
	case 0, 15, 30, 45:
		return true
	}
	return false
}

// UnmarshalJSON decodes a location, validating the radial address.
func (l *Location) UnmarshalJSON(data []byte) error {
	var wire locationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return invalidField("location", "", err)
	}

	if wire.RadialHour != nil && !ValidRadialHour(*wire.RadialHour) {
		return invalidField("location", "radial_hour", fmt.Errorf("out of range: %d", *wire.RadialHour))
	}
	if wire.RadialMinute != nil && !ValidRadialMinute(*wire.RadialMinute) {
		return invalidField("location", "radial_minute", fmt.Errorf("not a quarter hour: %d", *wire.RadialMinute))
	}

	*l = Location{
		Type:         deref(wire.Type),
		Name:         deref(wire.Name),
		Description:  deref(wire.Description),
		Concentric:   deref(wire.Concentric),
		RadialHour:   wire.RadialHour,
		RadialMinute: wire.RadialMinute,
	}
	return nil
}

// MarshalJSON encodes a location in the server's shape; empty strings
// are written as null.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{
		Type:         nullable(l.Type),
		Name:         nullable(l.Name),
		Description:  nullable(l.Description),
		RadialHour:   l.RadialHour,
		RadialMinute: l.RadialMinute,
		Concentric:   nullable(l.Concentric),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
