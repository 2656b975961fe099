package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Job is a schedulable unit: a set of triggers plus a history of runs.
type Job interface {
	// FullName is the stable identity used to seed hash tokens.
	FullName() string
	DisplayName() string
	// URL is relative to the server root and ends with a slash.
	URL() string

	IsBuildable() bool
	IsBuilding() bool
	EstimatedDuration() time.Duration

	// HealthScore is 0-100, or -1 when the job has no history.
	HealthScore() int

	Triggers() []Trigger

	// Builds returns every run, newest first.
	Builds() []Run

	// LastBuildsOverThreshold returns up to n completed runs, newest first,
	// whose result is better than or equal to threshold.
	LastBuildsOverThreshold(n int, threshold Result) []Run
}

// HealthIcon maps a health score to its icon class.
func HealthIcon(score int) string {
	switch {
	case score < 0:
		return "icon-nobuilt"
	case score < 20:
		return "icon-health-00to19"
	case score < 40:
		return "icon-health-20to39"
	case score < 60:
		return "icon-health-40to59"
	case score < 80:
		return "icon-health-60to79"
	default:
		return "icon-health-80plus"
	}
}

// ErrJobNotFound is returned by job providers for an unknown name.
var ErrJobNotFound = errors.New("job not found")
