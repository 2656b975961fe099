package domain

import "time"

// Run is one execution of a job. PreviousBuild and NextBuild return nil at
// either end of the history.
type Run interface {
	Number() int
	DisplayName() string
	URL() string

	StartTime() time.Time
	// Duration is the final duration, or zero while the run is building.
	Duration() time.Duration
	EstimatedDuration() time.Duration

	IsBuilding() bool
	// Result is ResultNone until the run completes.
	Result() Result

	PreviousBuild() Run
	NextBuild() Run
}

// Result is the outcome of a completed run.
type Result string

const (
	ResultNone     Result = ""
	ResultSuccess  Result = "SUCCESS"
	ResultUnstable Result = "UNSTABLE"
	ResultFailure  Result = "FAILURE"
	ResultNotBuilt Result = "NOT_BUILT"
	ResultAborted  Result = "ABORTED"
)

// severity orders results from best to worst.
var severity = map[Result]int{
	ResultSuccess:  0,
	ResultUnstable: 1,
	ResultFailure:  2,
	ResultNotBuilt: 3,
	ResultAborted:  4,
}

// IsValid reports whether r is a known result, including ResultNone.
func (r Result) IsValid() bool {
	if r == ResultNone {
		return true
	}
	_, ok := severity[r]
	return ok
}

// IsCompleted reports whether r is a final outcome.
func (r Result) IsCompleted() bool {
	_, ok := severity[r]
	return ok
}

// IsBetterOrEqualTo reports whether r is at most as severe as threshold.
// An incomplete result is never better than anything.
func (r Result) IsBetterOrEqualTo(threshold Result) bool {
	rs, ok := severity[r]
	if !ok {
		return false
	}
	ts, ok := severity[threshold]
	if !ok {
		return false
	}
	return rs <= ts
}

// IconColor returns the ball color of a run with this result.
func (r Result) IconColor(building bool) string {
	var color string
	switch r {
	case ResultSuccess:
		color = "blue"
	case ResultUnstable:
		color = "yellow"
	case ResultFailure:
		color = "red"
	case ResultNotBuilt:
		color = "nobuilt"
	case ResultAborted:
		color = "aborted"
	default:
		color = "grey"
	}
	if building {
		color += "-anime"
	}
	return color
}
