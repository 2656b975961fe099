package circuitbreaker

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
)

// Provider is the job provider contract.
type Provider interface {
	Jobs(ctx context.Context) ([]domain.Job, error)
	Job(ctx context.Context, name string) (domain.Job, error)
}

// GuardedProvider rejects calls with ErrCircuitOpen while its key is open.
// Failed calls are never retried.
type GuardedProvider struct {
	key     string
	inner   Provider
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Provider = (*GuardedProvider)(nil)

// Guard wraps inner. Providers sharing a backend should share key.
func Guard(key string, inner Provider, breaker *CircuitBreaker) *GuardedProvider {
	return &GuardedProvider{key: key, inner: inner, breaker: breaker, logger: zap.NewNop()}
}

func (g *GuardedProvider) WithLogger(logger *zap.Logger) *GuardedProvider {
	g.logger = logger
	return g
}

func (g *GuardedProvider) Jobs(ctx context.Context) ([]domain.Job, error) {
	if err := g.breaker.Allow(g.key); err != nil {
		return nil, errors.Wrapf(err, "%s: list jobs", g.key)
	}
	jobs, err := g.inner.Jobs(ctx)
	g.record(ctx, err)
	return jobs, err
}

func (g *GuardedProvider) Job(ctx context.Context, name string) (domain.Job, error) {
	if err := g.breaker.Allow(g.key); err != nil {
		return nil, errors.Wrapf(err, "%s: get job %q", g.key, name)
	}
	job, err := g.inner.Job(ctx, name)
	g.record(ctx, err)
	return job, err
}

// record treats an unknown job and a cancelled caller as healthy backend
// answers.
func (g *GuardedProvider) record(ctx context.Context, err error) {
	if err == nil || errors.Is(err, domain.ErrJobNotFound) || ctx.Err() != nil {
		g.breaker.RecordSuccess(g.key)
		return
	}
	if g.breaker.RecordFailure(g.key) {
		g.logger.Warn("circuitbreaker: provider failing, rejecting calls during cooldown",
			zap.String("provider", g.key),
			zap.Duration("cooldown", g.breaker.cooldown),
			zap.Error(err),
		)
	}
}
