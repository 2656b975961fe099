// Package postgres is a read-only job provider backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/lib/pq/hstore"
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/store/memory"
)

// Store lists jobs and their history from PostgreSQL. Every call reads the
// current rows; nothing is cached.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration // 0 = no per-call timeout
	logger    *zap.Logger
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: zap.NewNop()}
}

// WithOpTimeout bounds every provider call.
func (s *Store) WithOpTimeout(d time.Duration) *Store {
	s.opTimeout = d
	return s
}

func (s *Store) WithLogger(logger *zap.Logger) *Store {
	s.logger = logger
	return s
}

// Open opens a lib/pq connection pool and checks it is reachable.
func Open(ctx context.Context, databaseURL string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}

// Jobs returns every job ordered by name.
func (s *Store) Jobs(ctx context.Context) ([]domain.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.jobRows(ctx, queryListJobs)
	if err != nil {
		return nil, err
	}
	triggers, err := s.triggerRows(ctx, queryListTriggers)
	if err != nil {
		return nil, err
	}
	schedules, err := s.scheduleRows(ctx, queryListSchedules)
	if err != nil {
		return nil, err
	}
	builds, err := s.buildRows(ctx, queryListBuilds)
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, r := range rows {
		j, err := assemble(r, triggers[r.id], schedules, builds[r.id])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	s.logger.Debug("postgres: jobs loaded", zap.Int("jobs", len(jobs)))
	return jobs, nil
}

// Job returns domain.ErrJobNotFound for an unknown name.
func (s *Store) Job(ctx context.Context, name string) (domain.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r jobRow
	err := scanJob(s.db.QueryRowContext(ctx, queryGetJobByName, name), &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrJobNotFound, "%q", name)
	}
	if err != nil {
		return nil, wrapQueryError(err, "get job")
	}

	triggers, err := s.triggerRows(ctx, queryListJobTriggers, r.id)
	if err != nil {
		return nil, err
	}
	schedules, err := s.scheduleRows(ctx, queryListJobSchedules, r.id)
	if err != nil {
		return nil, err
	}
	builds, err := s.buildRows(ctx, queryListJobBuilds, r.id)
	if err != nil {
		return nil, err
	}
	return assemble(r, triggers[r.id], schedules, builds[r.id])
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

type jobRow struct {
	id          uuid.UUID
	name        string
	displayName sql.NullString
	url         sql.NullString
	buildable   bool
	estimatedMs int64
	health      sql.NullInt64
}

type triggerRow struct {
	id   uuid.UUID
	spec memory.TriggerSpec
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, r *jobRow) error {
	return row.Scan(&r.id, &r.name, &r.displayName, &r.url, &r.buildable, &r.estimatedMs, &r.health)
}

func (s *Store) jobRows(ctx context.Context, query string, args ...any) ([]jobRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "list jobs")
	}
	defer rows.Close()

	var result []jobRow
	for rows.Next() {
		var r jobRow
		if err := scanJob(rows, &r); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	return result, nil
}

// triggerRows groups triggers by job id, in position order.
func (s *Store) triggerRows(ctx context.Context, query string, args ...any) (map[uuid.UUID][]triggerRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "list triggers")
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]triggerRow)
	for rows.Next() {
		var (
			t                       triggerRow
			jobID                   uuid.UUID
			spec, parameterizedSpec sql.NullString
		)
		if err := rows.Scan(&t.id, &jobID, &t.spec.Kind, &spec, &parameterizedSpec); err != nil {
			return nil, errors.Wrap(err, "scan trigger")
		}
		t.spec.Spec = spec.String
		t.spec.ParameterizedSpec = parameterizedSpec.String
		result[jobID] = append(result[jobID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list triggers")
	}
	return result, nil
}

// scheduleRows groups structured schedule entries by trigger id.
func (s *Store) scheduleRows(ctx context.Context, query string, args ...any) (map[uuid.UUID][]memory.ScheduleSpec, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "list trigger schedules")
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]memory.ScheduleSpec)
	for rows.Next() {
		var (
			triggerID uuid.UUID
			entry     memory.ScheduleSpec
			timezone  sql.NullString
			params    hstore.Hstore
		)
		if err := rows.Scan(&triggerID, &entry.Expression, &timezone, &params); err != nil {
			return nil, errors.Wrap(err, "scan trigger schedule")
		}
		entry.Timezone = timezone.String
		if len(params.Map) > 0 {
			entry.Parameters = make(map[string]string, len(params.Map))
			for k, v := range params.Map {
				entry.Parameters[k] = v.String
			}
		}
		result[triggerID] = append(result[triggerID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list trigger schedules")
	}
	return result, nil
}

// buildRows groups builds by job id.
func (s *Store) buildRows(ctx context.Context, query string, args ...any) (map[uuid.UUID][]memory.BuildSpec, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "list builds")
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]memory.BuildSpec)
	for rows.Next() {
		var (
			jobID                   uuid.UUID
			b                       memory.BuildSpec
			durationMs, estimatedMs int64
			res                     sql.NullString
		)
		if err := rows.Scan(&jobID, &b.Number, &b.Start, &durationMs, &estimatedMs, &b.Building, &res); err != nil {
			return nil, errors.Wrap(err, "scan build")
		}
		b.Duration = time.Duration(durationMs) * time.Millisecond
		b.EstimatedDuration = time.Duration(estimatedMs) * time.Millisecond
		b.Result = res.String
		result[jobID] = append(result[jobID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list builds")
	}
	return result, nil
}

func assemble(r jobRow, triggers []triggerRow, schedules map[uuid.UUID][]memory.ScheduleSpec, builds []memory.BuildSpec) (*memory.Job, error) {
	buildable := r.buildable
	spec := memory.JobSpec{
		Name:              r.name,
		DisplayName:       r.displayName.String,
		URL:               r.url.String,
		Buildable:         &buildable,
		EstimatedDuration: time.Duration(r.estimatedMs) * time.Millisecond,
		Builds:            builds,
	}
	if r.health.Valid {
		health := int(r.health.Int64)
		spec.Health = &health
	}
	for _, t := range triggers {
		ts := t.spec
		ts.Schedules = schedules[t.id]
		spec.Triggers = append(spec.Triggers, ts)
	}

	j, err := memory.NewJob(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "job %s", r.id)
	}
	return j, nil
}

// wrapQueryError adds a hint when the schema has not been created.
func wrapQueryError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return errors.WithHint(errors.Wrap(err, op), "create the jobs, triggers, trigger_schedules and builds tables")
	}
	return errors.Wrap(err, op)
}
