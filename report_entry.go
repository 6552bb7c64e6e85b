package ims

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReportEntry is one entry in an incident's report log.
type ReportEntry struct {
	Created     time.Time
	Author      string
	SystemEntry bool
	Text        string
}

type reportEntryJSON struct {
	Created     *string `json:"created"`
	Author      *string `json:"author"`
	SystemEntry *bool   `json:"system_entry"`
	Text        *string `json:"text"`
}

func (e ReportEntry) String() string {
	marker := ""
	if e.SystemEntry {
		marker = "*"
	}
	return fmt.Sprintf("%s %s%s: %s", e.Created.Format(time.RFC3339), e.Author, marker, e.Text)
}

// UnmarshalJSON decodes a report entry; every field is required.
func (e *ReportEntry) UnmarshalJSON(data []byte) error {
	var wire reportEntryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return invalidField("report entry", "", err)
	}

	switch {
	case wire.Created == nil:
		return missingField("report entry", "created")
	case wire.Author == nil:
		return missingField("report entry", "author")
	case wire.SystemEntry == nil:
		return missingField("report entry", "system_entry")
	case wire.Text == nil:
		return missingField("report entry", "text")
	}

	created, err := time.Parse(time.RFC3339Nano, *wire.Created)
	if err != nil {
		return invalidField("report entry", "created", err)
	}

	*e = ReportEntry{
		Created:     created,
		Author:      *wire.Author,
		SystemEntry: *wire.SystemEntry,
		Text:        *wire.Text,
	}
	return nil
}

// MarshalJSON encodes a report entry in the server's shape.
func (e ReportEntry) MarshalJSON() ([]byte, error) {
	created := e.Created.Format(time.RFC3339Nano)
	return json.Marshal(reportEntryJSON{
		Created:     &created,
		Author:      &e.Author,
		SystemEntry: &e.SystemEntry,
		Text:        &e.Text,
	})
}
