package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/calendar"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/circuitbreaker"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cron"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cronjob"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/event"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/metrics"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 1000
	MaxLimit     = 10000
)

// Store is the job provider the handler reads from.
type Store interface {
	Jobs(ctx context.Context) ([]domain.Job, error)
	Job(ctx context.Context, name string) (domain.Job, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Clock supplies the default "now" of a request.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MetricsSink receives request metrics and is handed to the per-request
// schedule and calendar services.
type MetricsSink interface {
	cronjob.MetricsSink
	calendar.MetricsSink
	RequestCompleted(route string, statusClass string, duration time.Duration)
}

type Handler struct {
	store      Store
	parser     *cron.Parser
	formats    cronjob.Formats
	lastEvents int
	clock      Clock
	db         HealthChecker
	logger     *zap.Logger
	metrics    MetricsSink // optional, nil = disabled
}

// NewHandler serves calendar queries over store. Date-only query values and
// schedule lines without a timezone use the parser's default location.
func NewHandler(store Store, parser *cron.Parser) *Handler {
	return &Handler{
		store:      store,
		parser:     parser,
		formats:    cronjob.AllFormats,
		lastEvents: event.DefaultLastEvents,
		clock:      systemClock{},
		logger:     zap.NewNop(),
	}
}

// WithFormats selects the supported alternate schedule formats.
func (h *Handler) WithFormats(f cronjob.Formats) *Handler {
	h.formats = f
	return h
}

// WithLastEvents sets how many past runs scheduled events expose.
func (h *Handler) WithLastEvents(n int) *Handler {
	h.lastEvents = n
	return h
}

func (h *Handler) WithClock(c Clock) *Handler {
	h.clock = c
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) WithLogger(logger *zap.Logger) *Handler {
	h.logger = logger
	return h
}

// WithMetrics attaches a metrics sink to the handler.
func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	route := h.route(rec, r)
	if h.metrics != nil {
		h.metrics.RequestCompleted(route, metrics.ClassifyStatus(rec.status), time.Since(start))
	}
}

// route dispatches r and returns its metric label.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) string {
	path := r.URL.Path

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "other"
	}

	switch {
	case path == "/health":
		h.health(w, r)
		return "/health"

	case path == "/events":
		h.listEvents(w, r)
		return "/events"

	case path == "/jobs":
		h.listJobs(w, r)
		return "/jobs"

	case strings.HasPrefix(path, "/jobs/") && strings.HasSuffix(path, "/next"):
		h.nextEvent(w, r, jobName(path, "/next"))
		return "/jobs/{name}/next"

	case strings.HasPrefix(path, "/jobs/") && strings.HasSuffix(path, "/last"):
		h.lastJobEvents(w, r, jobName(path, "/last"))
		return "/jobs/{name}/last"

	default:
		writeError(w, http.StatusNotFound, "not found")
		return "other"
	}
}

// jobName extracts {name} from /jobs/{name}/<suffix>. Folder names keep
// their slashes.
func jobName(path, suffix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "/jobs/"), suffix)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// services builds the schedule and calendar services pinned at now.
func (h *Handler) services(now moment.Moment) (*cronjob.Service, *calendar.Service) {
	cronJobs := cronjob.New(now, h.parser, h.formats).WithLogger(h.logger)
	cal := calendar.New(cronJobs).WithLogger(h.logger).WithLastEvents(h.lastEvents)
	if h.metrics != nil {
		cronJobs.WithMetrics(h.metrics)
		cal.WithMetrics(h.metrics)
	}
	return cronJobs, cal
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	query, err := parseEventsQuery(r, h.clock.Now(), h.parser.DefaultLocation())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, cal := h.services(query.now)
	events, err := cal.Collect(r.Context(), h.store, query.window, query.eventsType)
	if err != nil {
		h.logger.Error("api: list events error", zap.Error(err))
		writeError(w, providerErrorStatus(err), "failed to list events")
		return
	}

	resp := ListEventsResponse{Total: len(events), Events: []EventResponse{}}
	for _, e := range page(events, limit, offset) {
		resp.Events = append(resp.Events, NewEventResponse(e, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eventsType, err := parseEventsType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := h.store.Jobs(r.Context())
	if err != nil {
		h.logger.Error("api: list jobs error", zap.Error(err))
		writeError(w, providerErrorStatus(err), "failed to list jobs")
		return
	}

	cronJobs, _ := h.services(moment.New(h.clock.Now()))
	resp := ListJobsResponse{Jobs: []JobResponse{}}
	for _, job := range page(jobs, limit, offset) {
		jr := JobResponse{
			Name:        job.FullName(),
			DisplayName: job.DisplayName(),
			URL:         job.URL(),
			Buildable:   job.IsBuildable(),
			Building:    job.IsBuilding(),
			Health:      job.HealthScore(),
			HealthIcon:  domain.HealthIcon(job.HealthScore()),
		}
		if next, ok := cronJobs.NextStart(job, eventsType); ok && job.IsBuildable() {
			jr.NextStart = formatTime(next.Time())
		}
		resp.Jobs = append(resp.Jobs, jr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) nextEvent(w http.ResponseWriter, r *http.Request, name string) {
	eventsType, err := parseEventsType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := h.lookupJob(w, r, name)
	if !ok {
		return
	}

	_, cal := h.services(moment.New(h.clock.Now()))
	next := cal.NextScheduledJobEvent(job, eventsType)
	if next == nil || !job.IsBuildable() {
		writeError(w, http.StatusNotFound, "no scheduled event")
		return
	}
	writeJSON(w, http.StatusOK, NewEventResponse(next, true))
}

func (h *Handler) lastJobEvents(w http.ResponseWriter, r *http.Request, name string) {
	limit := h.lastEvents
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > MaxLimit {
			writeError(w, http.StatusBadRequest, (&limitExceededError{max: MaxLimit}).Error())
			return
		}
		limit = n
	}
	job, ok := h.lookupJob(w, r, name)
	if !ok {
		return
	}

	_, cal := h.services(moment.New(h.clock.Now()))
	resp := ListEventsResponse{Events: []EventResponse{}}
	events := cal.LastJobEvents(job, limit)
	resp.Total = len(events)
	for _, e := range events {
		resp.Events = append(resp.Events, NewEventResponse(e, true))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request, name string) (domain.Job, bool) {
	if name == "" {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	job, err := h.store.Job(r.Context(), name)
	if errors.Is(err, domain.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("api: get job error", zap.String("job", name), zap.Error(err))
		writeError(w, providerErrorStatus(err), "failed to get job")
		return nil, false
	}
	return job, true
}

// providerErrorStatus is 503 while the provider's circuit breaker is open.
func providerErrorStatus(err error) int {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// NewEventResponse renders e. With detail, scheduled events carry their
// last runs and started events their neighbours' ids.
func NewEventResponse(e event.Event, detail bool) EventResponse {
	resp := EventResponse{
		ID:         e.ID(),
		Title:      e.Title(),
		URL:        e.URL(),
		Job:        e.Job().FullName(),
		Start:      formatTime(e.Start().Time()),
		End:        formatTime(e.End().Time()),
		DurationMs: e.Duration().Milliseconds(),
		State:      string(e.State()),
		Type:       string(e.Type()),
		TypeClass:  e.Type().ClassName(),
		Icon:       e.IconClassName(),
	}

	switch e := e.(type) {
	case *event.Scheduled:
		if params := e.Parameters(); len(params) > 0 {
			resp.Parameters = params
		}
		if detail {
			for _, last := range e.LastEvents() {
				resp.LastEvents = append(resp.LastEvents, NewEventResponse(last, false))
			}
		}
	case *event.Started:
		resp.Number = e.Run().Number()
		if detail {
			if prev := e.PreviousEvent(); prev != nil {
				resp.Previous = prev.ID()
			}
			if next := e.NextEvent(); next != nil {
				resp.Next = next.ID()
			}
		}
	}
	return resp
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: json encode error", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
