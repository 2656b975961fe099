package api

import "time"

// EventResponse is one calendar entry. Previous, Next and LastEvents are
// only filled on single-job endpoints.
type EventResponse struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Job        string            `json:"job"`
	Number     int               `json:"number,omitempty"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	DurationMs int64             `json:"duration_ms"`
	State      string            `json:"state"`
	Type       string            `json:"type,omitempty"`
	TypeClass  string            `json:"type_class"`
	Icon       string            `json:"icon"`
	Parameters map[string]string `json:"parameters,omitempty"`

	Previous   string          `json:"previous,omitempty"`
	Next       string          `json:"next,omitempty"`
	LastEvents []EventResponse `json:"last_events,omitempty"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

type JobResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Buildable   bool   `json:"buildable"`
	Building    bool   `json:"building"`
	Health      int    `json:"health"`
	HealthIcon  string `json:"health_icon"`
	NextStart   string `json:"next_start,omitempty"`
}

type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
