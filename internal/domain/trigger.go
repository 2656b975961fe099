package domain

import "strings"

type TriggerKind string

const (
	TriggerTimer TriggerKind = "timer"
	TriggerPoll  TriggerKind = "poll"
)

// Trigger holds the schedule text of one job trigger. A trigger may carry
// more than one format; Schedules wins over ParameterizedSpec, which wins
// over Spec.
type Trigger struct {
	Kind TriggerKind

	Spec              string
	ParameterizedSpec string
	Schedules         []ScheduleEntry
}

// IsPolling reports whether the trigger polls an SCM instead of starting
// builds directly.
func (t Trigger) IsPolling() bool {
	return t.Kind == TriggerPoll
}

// HasSchedule reports whether any format carries non-blank text.
func (t Trigger) HasSchedule() bool {
	if strings.TrimSpace(t.Spec) != "" || strings.TrimSpace(t.ParameterizedSpec) != "" {
		return true
	}
	for _, s := range t.Schedules {
		if strings.TrimSpace(s.Expression) != "" {
			return true
		}
	}
	return false
}
