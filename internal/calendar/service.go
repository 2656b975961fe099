// Package calendar aggregates scheduled and started events of jobs over a
// time window.
package calendar

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cron"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cronjob"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/event"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/metrics"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// ErrInvalidStateFilter is returned when started events are requested with
// the scheduled state.
var ErrInvalidStateFilter = errors.New("invalid state filter for started events")

// JobProvider lists the jobs to aggregate over.
type JobProvider interface {
	Jobs(ctx context.Context) ([]domain.Job, error)
}

// MetricsSink receives aggregation metrics.
type MetricsSink interface {
	AggregationCompleted(duration time.Duration, events int, err error)
	EventsCollected(source string, count int)
	ScheduleScanned(direction string, occurrences int)
}

var _ event.Navigator = (*Service)(nil)

// Service computes events relative to the now of its cronjob service.
type Service struct {
	now      moment.Moment
	cronJobs *cronjob.Service
	factory  *event.Factory
	logger   *zap.Logger
	metrics  MetricsSink // optional, nil = disabled
}

func New(cronJobs *cronjob.Service) *Service {
	s := &Service{
		now:      cronJobs.Now(),
		cronJobs: cronJobs,
		logger:   zap.NewNop(),
	}
	s.factory = event.NewFactory(s.now, s)
	return s
}

func (s *Service) WithLogger(logger *zap.Logger) *Service {
	s.logger = logger
	return s
}

// WithMetrics attaches a metrics sink to the service.
func (s *Service) WithMetrics(sink MetricsSink) *Service {
	s.metrics = sink
	return s
}

// WithLastEvents sets how many past runs scheduled events expose.
func (s *Service) WithLastEvents(n int) *Service {
	s.factory.WithLastEvents(n)
	return s
}

func (s *Service) Now() moment.Moment { return s.now }

// Collect lists the provider's jobs and aggregates their events. Provider
// failures are returned as is.
func (s *Service) Collect(ctx context.Context, provider JobProvider, inclusion moment.Range, eventsType domain.EventsType) ([]event.Event, error) {
	begin := time.Now()
	jobs, err := provider.Jobs(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AggregationCompleted(time.Since(begin), 0, err)
		}
		return nil, errors.Wrap(err, "list jobs")
	}
	return s.Events(jobs, inclusion, eventsType), nil
}

// Events returns every event of jobs overlapping inclusion, sorted by start
// then end. The window is split at now: history is scanned before now and
// cron schedules after it, so no occurrence is reported twice.
func (s *Service) Events(jobs []domain.Job, inclusion moment.Range, eventsType domain.EventsType) []event.Event {
	begin := time.Now()
	now := s.now
	start, end := inclusion.Start(), inclusion.End()

	var events []event.Event
	switch {
	case now.Before(start):
		events = appendEvents(events, s.RunningEvents(jobs, inclusion, eventsType))
		if search, ok := validRange(now.NextMinute(), start.PreviousMinute()); ok {
			events = appendEvents(events, s.ScheduledEventsBackward(jobs, search, inclusion, eventsType))
		}
		events = appendEvents(events, s.ScheduledEventsForward(jobs, inclusion, inclusion, eventsType))
	case now.Equal(start):
		events = appendEvents(events, s.RunningEvents(jobs, inclusion, eventsType))
		if search, ok := validRange(now.NextMinute(), end); ok {
			events = appendEvents(events, s.ScheduledEventsForward(jobs, search, inclusion, eventsType))
		}
	case now.Equal(end), now.After(end):
		events = appendEvents(events, s.startedEvents(jobs, inclusion, event.StateAny, eventsType))
	default:
		if past, ok := validRange(start, now.NextMinute()); ok {
			events = appendEvents(events, s.startedEvents(jobs, past, event.StateAny, eventsType))
		}
		if search, ok := validRange(now.NextMinute(), end); ok {
			events = appendEvents(events, s.ScheduledEventsForward(jobs, search, inclusion, eventsType))
		}
	}

	event.Sort(events)

	s.logger.Debug("calendar: events aggregated",
		zap.Stringer("now", now),
		zap.Stringer("range", inclusion),
		zap.String("type", string(eventsType)),
		zap.Int("jobs", len(jobs)),
		zap.Int("events", len(events)))
	if s.metrics != nil {
		s.metrics.AggregationCompleted(time.Since(begin), len(events), nil)
	}
	return events
}

// ScheduledEventsForward walks each schedule forward from search's start.
func (s *Service) ScheduledEventsForward(jobs []domain.Job, search, inclusion moment.Range, eventsType domain.EventsType) []*event.Scheduled {
	return s.scheduledEvents(jobs, newCollector(s.factory, search, inclusion, forward), eventsType)
}

// ScheduledEventsBackward walks each schedule backward from search's end.
func (s *Service) ScheduledEventsBackward(jobs []domain.Job, search, inclusion moment.Range, eventsType domain.EventsType) []*event.Scheduled {
	return s.scheduledEvents(jobs, newCollector(s.factory, search, inclusion, backward), eventsType)
}

func (s *Service) scheduledEvents(jobs []domain.Job, c *collector, eventsType domain.EventsType) []*event.Scheduled {
	for _, job := range jobs {
		if !job.IsBuildable() {
			continue
		}
		estimated := job.EstimatedDuration()
		for _, tab := range s.cronJobs.JobTabs(job, eventsType) {
			c.collect(job, tab, estimated)
		}
	}
	if s.metrics != nil {
		s.metrics.ScheduleScanned(c.dir.String(), c.visited)
		s.metrics.EventsCollected(metrics.SourceSchedule, len(c.events))
	}
	return c.events
}

// RunningEvents returns runs in progress that overlap r.
func (s *Service) RunningEvents(jobs []domain.Job, r moment.Range, eventsType domain.EventsType) []*event.Started {
	return s.startedEvents(jobs, r, event.StateRunning, eventsType)
}

// FinishedEvents returns completed runs that overlap r.
func (s *Service) FinishedEvents(jobs []domain.Job, r moment.Range, eventsType domain.EventsType) []*event.Started {
	return s.startedEvents(jobs, r, event.StateFinished, eventsType)
}

// StartedEvents returns runs overlapping r, optionally filtered by state.
// StateScheduled is rejected with ErrInvalidStateFilter. Polling triggers
// never produce runs, so EventsPollings yields nothing.
func (s *Service) StartedEvents(jobs []domain.Job, r moment.Range, state event.State, eventsType domain.EventsType) ([]*event.Started, error) {
	if state == event.StateScheduled {
		return nil, errors.Wrapf(ErrInvalidStateFilter, "state %s", state)
	}
	return s.startedEvents(jobs, r, state, eventsType), nil
}

func (s *Service) startedEvents(jobs []domain.Job, r moment.Range, state event.State, eventsType domain.EventsType) []*event.Started {
	var events []*event.Started
	if eventsType == domain.EventsPollings {
		return events
	}
	for _, job := range jobs {
		if state == event.StateRunning && !job.IsBuilding() {
			continue
		}
		for _, run := range job.Builds() {
			if state == event.StateRunning && !run.IsBuilding() {
				continue
			}
			if state == event.StateFinished && run.IsBuilding() {
				continue
			}
			e := s.factory.Started(job, run, eventsType)
			if e.IsInRange(r) {
				events = append(events, e)
			}
		}
	}
	if s.metrics != nil {
		s.metrics.EventsCollected(metrics.SourceHistory, len(events))
	}
	return events
}

// LastEvents returns up to n of the most recent completed runs of e's job.
func (s *Service) LastEvents(e event.Event, n int) []*event.Started {
	return s.LastJobEvents(e.Job(), n)
}

// LastJobEvents returns up to n of job's most recent completed runs, newest
// first. Runs still building are skipped.
func (s *Service) LastJobEvents(job domain.Job, n int) []*event.Started {
	var events []*event.Started
	for _, run := range job.LastBuildsOverThreshold(n, domain.ResultAborted) {
		events = append(events, s.factory.Started(job, run, domain.EventsAll))
	}
	return events
}

// PreviousEvent returns the run before e's run, or nil.
func (s *Service) PreviousEvent(e *event.Started) *event.Started {
	if e.Run() == nil {
		return nil
	}
	prev := e.Run().PreviousBuild()
	if prev == nil {
		return nil
	}
	return s.factory.Started(e.Job(), prev, e.EventsType())
}

// NextEvent returns the run after e's run, or nil.
func (s *Service) NextEvent(e *event.Started) *event.Started {
	if e.Run() == nil {
		return nil
	}
	next := e.Run().NextBuild()
	if next == nil {
		return nil
	}
	return s.factory.Started(e.Job(), next, e.EventsType())
}

// NextScheduledEvent returns the job's next scheduled occurrence after now,
// or nil when it has no usable schedule.
func (s *Service) NextScheduledEvent(e event.Event, eventsType domain.EventsType) *event.Scheduled {
	return s.NextScheduledJobEvent(e.Job(), eventsType)
}

// NextScheduledJobEvent is NextScheduledEvent for a job.
func (s *Service) NextScheduledJobEvent(job domain.Job, eventsType domain.EventsType) *event.Scheduled {
	next, ok := s.cronJobs.NextStart(job, eventsType)
	if !ok {
		return nil
	}
	return s.factory.Scheduled(job, nil, next, job.EstimatedDuration())
}

type direction int

const (
	forward direction = iota
	backward
)

func (d direction) String() string {
	if d == backward {
		return metrics.DirectionBackward
	}
	return metrics.DirectionForward
}

// collector steps through cron occurrences inside search and keeps those
// whose events overlap inclusion.
type collector struct {
	factory   *event.Factory
	search    moment.Range
	inclusion moment.Range
	dir       direction

	events  []*event.Scheduled
	visited int
}

func newCollector(f *event.Factory, search, inclusion moment.Range, dir direction) *collector {
	return &collector{factory: f, search: search, inclusion: inclusion, dir: dir}
}

// collect stops at the first occurrence outside search, or whose event
// misses inclusion: occurrences are monotonic in the walk direction, so
// none after it can match either.
func (c *collector) collect(job domain.Job, tab cron.Evaluator, estimated time.Duration) {
	at := c.search.Start()
	if c.dir == backward {
		at = c.search.End()
	}
	params := tab.Parameters()

	for {
		occ, ok := c.next(tab, at.Time())
		if !ok {
			return
		}
		m := moment.New(occ)
		if c.search.Start().After(m) || c.search.End().Before(m) {
			return
		}
		c.visited++

		start := moment.New(moment.TruncateMinute(occ))
		e := c.factory.Scheduled(job, params, start, estimated)
		if !e.IsInRange(c.inclusion) {
			return
		}
		c.events = append(c.events, e)

		if c.dir == backward {
			at = start.Add(-time.Minute)
		} else {
			at = start.Add(time.Minute)
		}
	}
}

func (c *collector) next(tab cron.Evaluator, at time.Time) (time.Time, bool) {
	if c.dir == backward {
		return tab.Floor(at)
	}
	return tab.Ceiling(at)
}

func validRange(start, end moment.Moment) (moment.Range, bool) {
	if !moment.IsValidRange(start, end) {
		return moment.Range{}, false
	}
	r, err := moment.NewRange(start, end)
	return r, err == nil
}

func appendEvents[E event.Event](dst []event.Event, src []E) []event.Event {
	for _, e := range src {
		dst = append(dst, e)
	}
	return dst
}
