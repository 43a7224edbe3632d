package jira

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is the timestamp format of the v2 REST API.
const timeLayout = "2006-01-02T15:04:05.000-0700"

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue is the subset of a JIRA issue the importer reads.
type Issue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the requested issue fields.
type IssueFields struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Priority    *Priority `json:"priority"`
	Status      Status    `json:"status"`
	Labels      []string  `json:"labels"`
	Created     Time      `json:"created"`
	Updated     Time      `json:"updated"`
}

// Priority is an issue priority such as "Highest" or "Major".
type Priority struct {
	Name string `json:"name"`
}

// Status is a workflow status and the category it belongs to.
type Status struct {
	Name     string         `json:"name"`
	Category StatusCategory `json:"statusCategory"`
}

// StatusCategory keys are "new", "indeterminate" and "done".
type StatusCategory struct {
	Key string `json:"key"`
}

// Time decodes JIRA timestamps, falling back to RFC 3339.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode time: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.Parse(timeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("decode time %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}
