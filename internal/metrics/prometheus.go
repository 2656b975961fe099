package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *zap.Logger

	// Aggregation metrics
	aggregationsTotal      prometheus.Counter
	aggregationErrorsTotal prometheus.Counter
	aggregationDuration    prometheus.Histogram
	eventsReturned         prometheus.Histogram
	eventsCollectedTotal   *prometheus.CounterVec
	occurrencesTotal       *prometheus.CounterVec
	malformedLinesTotal    prometheus.Counter

	// Provider metrics
	reloadsTotal *prometheus.CounterVec
	jobsLoaded   prometheus.Gauge

	// API metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
// Metrics that fail to register keep counting but are not exported.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PrometheusSink{logger: logger}
	s.initAggregationMetrics(reg)
	s.initProviderMetrics(reg)
	s.initAPIMetrics(reg)
	return s
}

func (s *PrometheusSink) initAggregationMetrics(reg prometheus.Registerer) {
	s.aggregationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "croncal_aggregations_total",
		Help: "Total number of calendar aggregations computed.",
	})
	s.aggregationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "croncal_aggregation_errors_total",
		Help: "Total number of calendar aggregations that failed.",
	})
	s.aggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "croncal_aggregation_duration_seconds",
		Help:    "Duration of each calendar aggregation in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	s.eventsReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "croncal_aggregation_events",
		Help:    "Number of events returned by each aggregation.",
		Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000},
	})
	s.eventsCollectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "croncal_events_collected_total",
		Help: "Total number of events collected per source.",
	}, []string{"source"})
	s.occurrencesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "croncal_schedule_occurrences_total",
		Help: "Total number of schedule occurrences visited per search direction.",
	}, []string{"direction"})
	s.malformedLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "croncal_schedule_malformed_lines_total",
		Help: "Total number of schedule lines skipped because they could not be parsed.",
	})

	s.register(reg, s.aggregationsTotal, "croncal_aggregations_total")
	s.register(reg, s.aggregationErrorsTotal, "croncal_aggregation_errors_total")
	s.register(reg, s.aggregationDuration, "croncal_aggregation_duration_seconds")
	s.register(reg, s.eventsReturned, "croncal_aggregation_events")
	s.register(reg, s.eventsCollectedTotal, "croncal_events_collected_total")
	s.register(reg, s.occurrencesTotal, "croncal_schedule_occurrences_total")
	s.register(reg, s.malformedLinesTotal, "croncal_schedule_malformed_lines_total")
}

func (s *PrometheusSink) initProviderMetrics(reg prometheus.Registerer) {
	s.reloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "croncal_provider_reloads_total",
		Help: "Total number of job provider reloads by outcome.",
	}, []string{"outcome"})
	s.jobsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "croncal_provider_jobs",
		Help: "Number of jobs in the last successfully loaded snapshot.",
	})

	s.register(reg, s.reloadsTotal, "croncal_provider_reloads_total")
	s.register(reg, s.jobsLoaded, "croncal_provider_jobs")
}

func (s *PrometheusSink) initAPIMetrics(reg prometheus.Registerer) {
	s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "croncal_http_requests_total",
		Help: "Total number of HTTP requests by route and status class.",
	}, []string{"route", "status_class"})
	s.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "croncal_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route"})

	s.register(reg, s.requestsTotal, "croncal_http_requests_total")
	s.register(reg, s.requestDuration, "croncal_http_request_duration_seconds")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("metrics: failed to register", zap.String("metric", name), zap.Error(err))
	}
}

// Aggregation metrics implementation

func (s *PrometheusSink) AggregationCompleted(duration time.Duration, events int, err error) {
	s.aggregationsTotal.Inc()
	s.aggregationDuration.Observe(duration.Seconds())
	if err != nil {
		s.aggregationErrorsTotal.Inc()
		return
	}
	s.eventsReturned.Observe(float64(events))
}

func (s *PrometheusSink) EventsCollected(source string, count int) {
	s.eventsCollectedTotal.WithLabelValues(source).Add(float64(count))
}

func (s *PrometheusSink) ScheduleScanned(direction string, occurrences int) {
	s.occurrencesTotal.WithLabelValues(direction).Add(float64(occurrences))
}

func (s *PrometheusSink) MalformedScheduleLine() {
	s.malformedLinesTotal.Inc()
}

// Provider metrics implementation

func (s *PrometheusSink) ProviderReload(jobs int, err error) {
	if err != nil {
		s.reloadsTotal.WithLabelValues("failed").Inc()
		return
	}
	s.reloadsTotal.WithLabelValues("success").Inc()
	s.jobsLoaded.Set(float64(jobs))
}

// API metrics implementation

func (s *PrometheusSink) RequestCompleted(route string, statusClass string, duration time.Duration) {
	s.requestsTotal.WithLabelValues(route, statusClass).Inc()
	s.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
