package ims

import (
	"encoding/json"
	"fmt"
	"time"
)

// IncidentState is the dispatch state of an incident.
type IncidentState string

const (
	StateNew        IncidentState = "new"
	StateOnHold     IncidentState = "on_hold"
	StateDispatched IncidentState = "dispatched"
	StateOnScene    IncidentState = "on_scene"
	StateClosed     IncidentState = "closed"
)

var stateText = map[IncidentState]string{
	StateNew:        "New",
	StateOnHold:     "On Hold",
	StateDispatched: "Dispatched",
	StateOnScene:    "On Scene",
	StateClosed:     "Closed",
}

// ParseIncidentState returns the state named s.
// Anything other than the five known states is ErrInvalidState.
func ParseIncidentState(s string) (IncidentState, error) {
	state := IncidentState(s)
	if _, ok := stateText[state]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return state, nil
}

// Text returns the display label for the state, e.g. "On Hold".
func (s IncidentState) Text() (string, error) {
	text, ok := stateText[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, string(s))
	}
	return text, nil
}

// Priorities range from MinPriority (highest) to MaxPriority (lowest).
const (
	MinPriority = 1
	MaxPriority = 5
)

// Incident is a record of something Rangers respond to.
type Incident struct {
	EventID  string
	Number   int
	Created  time.Time
	State    IncidentState
	Priority int
	// Summary is nil when the incident has none.
	Summary       *string
	Location      *Location
	RangerHandles []string
	IncidentTypes []string
	ReportEntries []ReportEntry
}

type incidentJSON struct {
	Event         *string       `json:"event"`
	Number        *int          `json:"number"`
	Created       *string       `json:"created"`
	State         *string       `json:"state"`
	Priority      *int          `json:"priority"`
	Summary       *string       `json:"summary"`
	Location      *Location     `json:"location"`
	RangerHandles *[]string     `json:"ranger_handles"`
	IncidentTypes *[]string     `json:"incident_types"`
	ReportEntries []ReportEntry `json:"report_entries,omitempty"`
}

func (i Incident) String() string {
	return fmt.Sprintf("(%s#%d)", i.EventID, i.Number)
}

// UnmarshalJSON decodes an incident from the server's shape. Missing
// required fields and invalid values are reported as *InvalidJSONError;
// nothing is defaulted.
func (i *Incident) UnmarshalJSON(data []byte) error {
	var wire incidentJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return invalidField("incident", "", err)
	}

	switch {
	case wire.Event == nil || *wire.Event == "":
		return missingField("incident", "event")
	case wire.Number == nil:
		return missingField("incident", "number")
	case wire.Created == nil:
		return missingField("incident", "created")
	case wire.State == nil:
		return missingField("incident", "state")
	case wire.Priority == nil:
		return missingField("incident", "priority")
	case wire.RangerHandles == nil:
		return missingField("incident", "ranger_handles")
	case wire.IncidentTypes == nil:
		return missingField("incident", "incident_types")
	}

	if *wire.Number < 1 {
		return invalidField("incident", "number", fmt.Errorf("not positive: %d", *wire.Number))
	}
	created, err := time.Parse(time.RFC3339Nano, *wire.Created)
	if err != nil {
		return invalidField("incident", "created", err)
	}
	state, err := ParseIncidentState(*wire.State)
	if err != nil {
		return invalidField("incident", "state", err)
	}
	if *wire.Priority < MinPriority || *wire.Priority > MaxPriority {
		return invalidField("incident", "priority", fmt.Errorf("out of range: %d", *wire.Priority))
	}

	*i = Incident{
		EventID:       *wire.Event,
		Number:        *wire.Number,
		Created:       created,
		State:         state,
		Priority:      *wire.Priority,
		Summary:       wire.Summary,
		Location:      wire.Location,
		RangerHandles: *wire.RangerHandles,
		IncidentTypes: *wire.IncidentTypes,
		ReportEntries: wire.ReportEntries,
	}
	return nil
}

// MarshalJSON encodes an incident in the server's shape.
func (i Incident) MarshalJSON() ([]byte, error) {
	created := i.Created.Format(time.RFC3339Nano)
	state := string(i.State)
	rangerHandles := i.RangerHandles
	if rangerHandles == nil {
		rangerHandles = []string{}
	}
	incidentTypes := i.IncidentTypes
	if incidentTypes == nil {
		incidentTypes = []string{}
	}

	return json.Marshal(incidentJSON{
		Event:         &i.EventID,
		Number:        &i.Number,
		Created:       &created,
		State:         &state,
		Priority:      &i.Priority,
		Summary:       i.Summary,
		Location:      i.Location,
		RangerHandles: &rangerHandles,
		IncidentTypes: &incidentTypes,
		ReportEntries: i.ReportEntries,
	})
}

func decodeIncidents(data []byte) ([]Incident, error) {
	var incidents []Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, err
	}
	if incidents == nil {
		return nil, missingField("incidents", "")
	}
	return incidents, nil
}
