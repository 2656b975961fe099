package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) AggregationCompleted(duration time.Duration, events int, err error) {}
func (n *NoopSink) EventsCollected(source string, count int)                           {}
func (n *NoopSink) ScheduleScanned(direction string, occurrences int)                  {}
func (n *NoopSink) MalformedScheduleLine()                                             {}
func (n *NoopSink) ProviderReload(jobs int, err error)                                 {}
func (n *NoopSink) RequestCompleted(route, statusClass string, d time.Duration)        {}
