package memory

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
)

// JobSpec is the declarative form of a job as stored in a jobs file or a
// database row set.
type JobSpec struct {
	Name              string        `yaml:"name"`
	DisplayName       string        `yaml:"display_name,omitempty"`
	URL               string        `yaml:"url,omitempty"`
	Buildable         *bool         `yaml:"buildable,omitempty"` // nil = true
	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty"`
	Health            *int          `yaml:"health,omitempty"` // nil = derived from builds
	Triggers          []TriggerSpec `yaml:"triggers,omitempty"`
	Builds            []BuildSpec   `yaml:"builds,omitempty"`
}

type TriggerSpec struct {
	Kind              string         `yaml:"kind,omitempty"` // timer (default) or poll
	Spec              string         `yaml:"spec,omitempty"`
	ParameterizedSpec string         `yaml:"parameterized_spec,omitempty"`
	Schedules         []ScheduleSpec `yaml:"schedules,omitempty"`
}

type ScheduleSpec struct {
	Expression string            `yaml:"expression"`
	Timezone   string            `yaml:"timezone,omitempty"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

type BuildSpec struct {
	Number            int           `yaml:"number,omitempty"`
	Start             time.Time     `yaml:"start"`
	Duration          time.Duration `yaml:"duration,omitempty"`
	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty"`
	Building          bool          `yaml:"building,omitempty"`
	Result            string        `yaml:"result,omitempty"`
}

// healthWindow is the number of completed builds the derived health score
// looks at.
const healthWindow = 5

// Job is an immutable domain.Job snapshot.
type Job struct {
	name        string
	displayName string
	url         string
	buildable   bool
	estimated   time.Duration
	health      int
	triggers    []domain.Trigger
	builds      []*Run // newest first
}

// NewJob validates spec and builds a linked, immutable job.
func NewJob(spec JobSpec) (*Job, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("job name is required")
	}

	j := &Job{
		name:        name,
		displayName: spec.DisplayName,
		url:         spec.URL,
		buildable:   spec.Buildable == nil || *spec.Buildable,
		estimated:   spec.EstimatedDuration,
	}
	if j.displayName == "" {
		j.displayName = name
	}
	if j.url == "" {
		j.url = "job/" + name + "/"
	}
	if !strings.HasSuffix(j.url, "/") {
		j.url += "/"
	}

	for i, ts := range spec.Triggers {
		t, err := newTrigger(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "job %q: trigger %d", name, i+1)
		}
		j.triggers = append(j.triggers, t)
	}

	if err := j.linkBuilds(spec.Builds); err != nil {
		return nil, errors.Wrapf(err, "job %q", name)
	}

	if spec.Health != nil {
		j.health = *spec.Health
	} else {
		j.health = j.derivedHealth()
	}
	return j, nil
}

func newTrigger(ts TriggerSpec) (domain.Trigger, error) {
	kind := domain.TriggerKind(strings.ToLower(strings.TrimSpace(ts.Kind)))
	switch kind {
	case "":
		kind = domain.TriggerTimer
	case domain.TriggerTimer, domain.TriggerPoll:
	default:
		return domain.Trigger{}, errors.Newf("unknown trigger kind %q", ts.Kind)
	}

	t := domain.Trigger{
		Kind:              kind,
		Spec:              ts.Spec,
		ParameterizedSpec: ts.ParameterizedSpec,
	}
	for _, s := range ts.Schedules {
		t.Schedules = append(t.Schedules, domain.ScheduleEntry{
			Expression: s.Expression,
			Timezone:   s.Timezone,
			Parameters: s.Parameters,
		})
	}
	return t, nil
}

// linkBuilds orders builds chronologically, numbers unnumbered ones and
// links neighbours.
func (j *Job) linkBuilds(specs []BuildSpec) error {
	sorted := slices.Clone(specs)
	slices.SortStableFunc(sorted, func(a, b BuildSpec) int {
		return a.Start.Compare(b.Start)
	})

	seen := make(map[int]bool, len(sorted))
	var prev *Run
	for i, bs := range sorted {
		result := domain.Result(strings.ToUpper(strings.TrimSpace(bs.Result)))
		if !result.IsValid() {
			return errors.Newf("build %d: unknown result %q", bs.Number, bs.Result)
		}
		if bs.Building && result != domain.ResultNone {
			return errors.Newf("build %d: a building run has no result", bs.Number)
		}
		if bs.Start.IsZero() {
			return errors.Newf("build %d: start is required", bs.Number)
		}
		number := bs.Number
		if number == 0 {
			number = i + 1
		}
		if seen[number] {
			return errors.Newf("duplicate build number %d", number)
		}
		seen[number] = true

		r := &Run{
			job:       j,
			number:    number,
			start:     bs.Start,
			duration:  bs.Duration,
			estimated: bs.EstimatedDuration,
			building:  bs.Building,
			result:    result,
			prev:      prev,
		}
		if bs.Building {
			r.duration = 0
		}
		if prev != nil {
			prev.next = r
		}
		prev = r
		j.builds = append(j.builds, r)
	}
	slices.Reverse(j.builds)
	return nil
}

// derivedHealth is the success percentage of the most recent completed
// builds, or -1 without any.
func (j *Job) derivedHealth() int {
	total, ok := 0, 0
	for _, r := range j.builds {
		if !r.result.IsCompleted() {
			continue
		}
		total++
		if r.result == domain.ResultSuccess {
			ok++
		}
		if total == healthWindow {
			break
		}
	}
	if total == 0 {
		return -1
	}
	return ok * 100 / total
}

func (j *Job) FullName() string                 { return j.name }
func (j *Job) DisplayName() string              { return j.displayName }
func (j *Job) URL() string                      { return j.url }
func (j *Job) IsBuildable() bool                { return j.buildable }
func (j *Job) EstimatedDuration() time.Duration { return j.estimated }
func (j *Job) HealthScore() int                 { return j.health }
func (j *Job) Triggers() []domain.Trigger       { return slices.Clone(j.triggers) }

func (j *Job) IsBuilding() bool {
	for _, r := range j.builds {
		if r.building {
			return true
		}
	}
	return false
}

func (j *Job) Builds() []domain.Run {
	runs := make([]domain.Run, len(j.builds))
	for i, r := range j.builds {
		runs[i] = r
	}
	return runs
}

func (j *Job) LastBuildsOverThreshold(n int, threshold domain.Result) []domain.Run {
	var runs []domain.Run
	for _, r := range j.builds {
		if len(runs) >= n {
			break
		}
		if r.building || !r.result.IsBetterOrEqualTo(threshold) {
			continue
		}
		runs = append(runs, r)
	}
	return runs
}

// Run is one build of a Job.
type Run struct {
	job       *Job
	number    int
	start     time.Time
	duration  time.Duration
	estimated time.Duration
	building  bool
	result    domain.Result
	prev      *Run
	next      *Run
}

func (r *Run) Number() int             { return r.number }
func (r *Run) URL() string             { return r.job.url + strconv.Itoa(r.number) + "/" }
func (r *Run) StartTime() time.Time    { return r.start }
func (r *Run) Duration() time.Duration { return r.duration }
func (r *Run) IsBuilding() bool        { return r.building }
func (r *Run) Result() domain.Result   { return r.result }

func (r *Run) DisplayName() string {
	return r.job.displayName + " #" + strconv.Itoa(r.number)
}

// EstimatedDuration falls back to the job's estimate.
func (r *Run) EstimatedDuration() time.Duration {
	if r.estimated > 0 {
		return r.estimated
	}
	return r.job.estimated
}

func (r *Run) PreviousBuild() domain.Run {
	if r.prev == nil {
		return nil
	}
	return r.prev
}

func (r *Run) NextBuild() domain.Run {
	if r.next == nil {
		return nil
	}
	return r.next
}
