package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Aggregation metrics
	AggregationCompleted(duration time.Duration, events int, err error)
	EventsCollected(source string, count int)
	ScheduleScanned(direction string, occurrences int)
	MalformedScheduleLine()

	// Provider metrics
	ProviderReload(jobs int, err error)

	// API metrics
	RequestCompleted(route string, statusClass string, duration time.Duration)
}

// Direction constants for ScheduleScanned metric.
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"
)

// Source constants for EventsCollected metric.
const (
	SourceSchedule = "schedule"
	SourceHistory  = "history"
)

// StatusClass constants for RequestCompleted metric.
const (
	StatusClass2xx   = "2xx"
	StatusClass4xx   = "4xx"
	StatusClass5xx   = "5xx"
	StatusClassOther = "other"
)

// ClassifyStatus maps an HTTP status code to a status class.
func ClassifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOther
	}
}
