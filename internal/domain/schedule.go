package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ScheduleEntry is one pre-structured schedule line.
type ScheduleEntry struct {
	Expression string
	Timezone   string // IANA timezone, empty for the default
	Parameters map[string]string
}

// EventsType selects build triggers, polling triggers, or both.
type EventsType string

const (
	EventsAll      EventsType = "ALL"
	EventsBuilds   EventsType = "BUILDS"
	EventsPollings EventsType = "POLLINGS"
)

// ParseEventsType accepts the names case-insensitively. Empty means ALL.
func ParseEventsType(s string) (EventsType, error) {
	switch EventsType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", EventsAll:
		return EventsAll, nil
	case EventsBuilds:
		return EventsBuilds, nil
	case EventsPollings:
		return EventsPollings, nil
	}
	return "", errors.Newf("unknown events type %q", s)
}

// Includes reports whether t is selected. A trigger is a build trigger
// unless it is a polling trigger.
func (e EventsType) Includes(t Trigger) bool {
	switch e {
	case EventsBuilds:
		return !t.IsPolling()
	case EventsPollings:
		return t.IsPolling()
	default:
		return true
	}
}
