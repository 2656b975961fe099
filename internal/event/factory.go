package event

import (
	"strings"
	"time"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// DefaultLastEvents is how many past runs a scheduled event exposes.
const DefaultLastEvents = 5

// MinDuration is the shortest span an event covers.
const MinDuration = time.Second

// Factory builds events relative to a fixed now.
type Factory struct {
	now        moment.Moment
	nav        Navigator
	lastEvents int
}

// NewFactory returns a factory whose events resolve their links through
// nav. nav may be nil, in which case links resolve to nothing.
func NewFactory(now moment.Moment, nav Navigator) *Factory {
	return &Factory{now: now, nav: nav, lastEvents: DefaultLastEvents}
}

// WithLastEvents sets how many past runs a scheduled event exposes.
func (f *Factory) WithLastEvents(n int) *Factory {
	if n >= 0 {
		f.lastEvents = n
	}
	return f
}

func (f *Factory) Now() moment.Moment { return f.now }

// Scheduled builds a scheduled event for job starting at start.
func (f *Factory) Scheduled(job domain.Job, params map[string]string, start moment.Moment, estimated time.Duration) *Scheduled {
	return &Scheduled{
		base: base{
			id:       ID(job.URL()),
			title:    job.DisplayName(),
			url:      job.URL(),
			job:      job,
			start:    start,
			end:      End(start, estimated),
			duration: estimated,
			typ:      TypeFuture,
			nav:      f.nav,
		},
		params:     params,
		lastEvents: f.lastEvents,
	}
}

// Started builds an event for run. A run still building lasts at least as
// long as it has been running so far.
func (f *Factory) Started(job domain.Job, run domain.Run, eventsType domain.EventsType) *Started {
	start := moment.New(run.StartTime())
	d := run.Duration()
	if run.IsBuilding() {
		d = max(run.EstimatedDuration(), f.now.Sub(start))
	}
	return &Started{
		base: base{
			id:       ID(run.URL()),
			title:    run.DisplayName(),
			url:      run.URL(),
			job:      job,
			start:    start,
			end:      End(start, d),
			duration: d,
			typ:      TypeFromResult(run.Result()),
			nav:      f.nav,
		},
		run:        run,
		eventsType: eventsType,
	}
}

// End returns start plus d in whole seconds, never less than MinDuration.
func End(start moment.Moment, d time.Duration) moment.Moment {
	return start.Add(max(d, MinDuration).Truncate(time.Second))
}

// ID derives a stable identifier from a URL path, e.g. "job/a/12/" becomes
// "job-a-12".
func ID(url string) string {
	id := strings.ToLower(strings.ReplaceAll(url, "/", "-"))
	return strings.TrimSuffix(id, "-")
}
