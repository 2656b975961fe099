package main

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/api"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/calendar"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/circuitbreaker"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/config"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cron"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cronjob"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/store/memory"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/store/postgres"
)

// provider is the configured job source.
type provider struct {
	store api.Store
	db    *sql.DB       // nil for a jobs file
	files *memory.Store // nil for PostgreSQL
}

// openProvider loads the jobs file or connects to PostgreSQL. sink may be
// nil.
func openProvider(ctx context.Context, cfg config.Config, logger *zap.Logger, sink memory.MetricsSink) (*provider, error) {
	if cfg.JobsFile != "" {
		files := memory.NewStore(cfg.JobsFile).
			WithLogger(logger).
			WithDebounce(cfg.ReloadDebounce)
		if sink != nil {
			files.WithMetrics(sink)
		}
		if err := files.Load(); err != nil {
			return nil, err
		}
		return &provider{store: files, files: files}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	logger.Info("croncal: connected to database", zap.Int("max_open_conns", cfg.DBMaxOpenConns))
	var store api.Store = postgres.New(db).
		WithOpTimeout(cfg.DBOpTimeout).
		WithLogger(logger)
	if cfg.DBBreakerThreshold > 0 {
		breaker := circuitbreaker.New(cfg.DBBreakerThreshold, cfg.DBBreakerCooldown)
		store = circuitbreaker.Guard("postgres", store, breaker).WithLogger(logger)
	}
	return &provider{store: store, db: db}, nil
}

func (p *provider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// services builds the schedule and calendar services pinned at now.
func services(cfg config.Config, now time.Time, logger *zap.Logger) (*cronjob.Service, *calendar.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, invalidConfig(err)
	}
	formats := cronjob.Formats{
		Parameterized: cfg.Formats.Parameterized,
		Structured:    cfg.Formats.Structured,
	}
	cronJobs := cronjob.New(moment.New(now.In(loc)), cron.NewParser(loc), formats).WithLogger(logger)
	cal := calendar.New(cronJobs).WithLogger(logger).WithLastEvents(cfg.LastEvents)
	return cronJobs, cal, nil
}

// malformedCounter counts schedule lines that fail to parse.
type malformedCounter struct{ n int }

func (m *malformedCounter) MalformedScheduleLine() { m.n++ }

// checkJobsFile parses the jobs file and every schedule in it. It returns
// the number of jobs and of malformed schedule lines.
func checkJobsFile(cfg config.Config) (jobs, malformed int, err error) {
	files := memory.NewStore(cfg.JobsFile)
	if err := files.Load(); err != nil {
		return 0, 0, err
	}
	all, err := files.Jobs(context.Background())
	if err != nil {
		return 0, 0, err
	}

	cronJobs, _, err := services(cfg, time.Now(), zap.NewNop())
	if err != nil {
		return 0, 0, err
	}
	counter := &malformedCounter{}
	cronJobs.WithMetrics(counter)
	for _, job := range all {
		cronJobs.JobTabs(job, domain.EventsAll)
	}
	return len(all), counter.n, nil
}
