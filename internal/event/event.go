// Package event models the calendar entries computed from jobs: scheduled
// occurrences derived from cron triggers and started runs taken from build
// history.
package event

import (
	"strings"
	"sync"
	"time"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

type State string

const (
	StateAny       State = ""
	StateScheduled State = "SCHEDULED"
	StateRunning   State = "RUNNING"
	StateFinished  State = "FINISHED"
)

// Type classifies an event for rendering.
type Type string

const (
	TypeNone     Type = ""
	TypeSuccess  Type = "SUCCESS"
	TypeFailure  Type = "FAILURE"
	TypeUnstable Type = "UNSTABLE"
	TypeAborted  Type = "ABORTED"
	TypeNotBuilt Type = "NOT_BUILT"
	TypeFuture   Type = "FUTURE"
)

// TypeFromResult maps a run result to its event type. Incomplete runs have
// no type.
func TypeFromResult(r domain.Result) Type {
	switch r {
	case domain.ResultSuccess:
		return TypeSuccess
	case domain.ResultFailure:
		return TypeFailure
	case domain.ResultUnstable:
		return TypeUnstable
	case domain.ResultAborted:
		return TypeAborted
	case domain.ResultNotBuilt:
		return TypeNotBuilt
	}
	return TypeNone
}

// ClassName returns the CSS class of t, e.g. "event-not-built".
func (t Type) ClassName() string {
	if t == TypeNone {
		return "event-running"
	}
	return "event-" + strings.ReplaceAll(strings.ToLower(string(t)), "_", "-")
}

// Event is either a *Scheduled or a *Started.
type Event interface {
	ID() string
	Title() string
	URL() string
	Job() domain.Job

	Start() moment.Moment
	End() moment.Moment
	Duration() time.Duration

	State() State
	Type() Type
	IconClassName() string

	IsInRange(r moment.Range) bool

	isEvent()
}

// Navigator resolves the links between events. Results may be nil.
type Navigator interface {
	LastEvents(e Event, n int) []*Started
	PreviousEvent(e *Started) *Started
	NextEvent(e *Started) *Started
	NextScheduledEvent(e Event, eventsType domain.EventsType) *Scheduled
}

type base struct {
	id       string
	title    string
	url      string
	job      domain.Job
	start    moment.Moment
	end      moment.Moment
	duration time.Duration
	typ      Type
	nav      Navigator
}

func (b *base) ID() string              { return b.id }
func (b *base) Title() string           { return b.title }
func (b *base) URL() string             { return b.url }
func (b *base) Job() domain.Job         { return b.job }
func (b *base) Start() moment.Moment    { return b.start }
func (b *base) End() moment.Moment      { return b.end }
func (b *base) Duration() time.Duration { return b.duration }
func (b *base) Type() Type              { return b.typ }

// IsInRange reports whether the event overlaps r: it starts inside r, ends
// strictly inside r, or spans all of r.
func (b *base) IsInRange(r moment.Range) bool {
	return r.Contains(b.start) ||
		(b.end.After(r.Start()) && b.end.Before(r.End())) ||
		(!b.start.After(r.Start()) && !b.end.Before(r.End()))
}

func (b *base) String() string {
	return b.start.String() + " - " + b.end.String() + ": " + b.title
}

// Scheduled is a future occurrence of a cron trigger.
type Scheduled struct {
	base
	params     map[string]string
	lastEvents int

	lastOnce sync.Once
	last     []*Started
}

func (e *Scheduled) State() State { return StateScheduled }
func (e *Scheduled) isEvent()     {}

func (e *Scheduled) IconClassName() string {
	return domain.HealthIcon(e.job.HealthScore())
}

// Parameters returns the build parameters of the trigger line.
func (e *Scheduled) Parameters() map[string]string {
	out := make(map[string]string, len(e.params))
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// LastEvents returns the job's most recent completed runs, computed once.
func (e *Scheduled) LastEvents() []*Started {
	e.lastOnce.Do(func() {
		if e.nav != nil {
			e.last = e.nav.LastEvents(e, e.lastEvents)
		}
	})
	return e.last
}

// Started is a run taken from build history.
type Started struct {
	base
	run        domain.Run
	eventsType domain.EventsType

	prevOnce  sync.Once
	prev      *Started
	nextOnce  sync.Once
	next      *Started
	schedOnce sync.Once
	sched     *Scheduled
}

func (e *Started) isEvent()        {}
func (e *Started) Run() domain.Run { return e.run }

// EventsType is the trigger selection the event was collected with. It is
// used when resolving NextScheduledEvent.
func (e *Started) EventsType() domain.EventsType { return e.eventsType }

func (e *Started) State() State {
	if e.run.IsBuilding() {
		return StateRunning
	}
	return StateFinished
}

func (e *Started) IconClassName() string {
	return "icon-" + e.run.Result().IconColor(e.run.IsBuilding())
}

// PreviousEvent returns the chronologically previous run, computed once.
func (e *Started) PreviousEvent() *Started {
	e.prevOnce.Do(func() {
		if e.nav != nil {
			e.prev = e.nav.PreviousEvent(e)
		}
	})
	return e.prev
}

// NextEvent returns the chronologically next run, computed once.
func (e *Started) NextEvent() *Started {
	e.nextOnce.Do(func() {
		if e.nav != nil {
			e.next = e.nav.NextEvent(e)
		}
	})
	return e.next
}

// NextScheduledEvent returns the job's next scheduled occurrence, computed
// once.
func (e *Started) NextScheduledEvent() *Scheduled {
	e.schedOnce.Do(func() {
		if e.nav != nil {
			e.sched = e.nav.NextScheduledEvent(e, e.eventsType)
		}
	})
	return e.sched
}
