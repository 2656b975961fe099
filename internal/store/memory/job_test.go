package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
)

var t0 = time.Date(2018, 1, 1, 10, 0, 0, 0, time.UTC)

func TestNewJob_Defaults(t *testing.T) {
	j, err := NewJob(JobSpec{Name: "nightly"})
	require.NoError(t, err)

	assert.Equal(t, "nightly", j.FullName())
	assert.Equal(t, "nightly", j.DisplayName())
	assert.Equal(t, "job/nightly/", j.URL())
	assert.True(t, j.IsBuildable())
	assert.False(t, j.IsBuilding())
	assert.Equal(t, -1, j.HealthScore())
	assert.Empty(t, j.Builds())
}

func TestNewJob_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec JobSpec
	}{
		{"missing name", JobSpec{Name: " "}},
		{"unknown trigger kind", JobSpec{Name: "a", Triggers: []TriggerSpec{{Kind: "webhook"}}}},
		{"unknown result", JobSpec{Name: "a", Builds: []BuildSpec{{Start: t0, Result: "GREEN"}}}},
		{"building with result", JobSpec{Name: "a", Builds: []BuildSpec{{Start: t0, Building: true, Result: "SUCCESS"}}}},
		{"missing start", JobSpec{Name: "a", Builds: []BuildSpec{{Number: 1}}}},
		{"duplicate number", JobSpec{Name: "a", Builds: []BuildSpec{{Number: 1, Start: t0}, {Number: 1, Start: t0.Add(time.Hour)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJob(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestNewJob_BuildLinks(t *testing.T) {
	j, err := NewJob(JobSpec{
		Name:              "app",
		URL:               "job/app",
		EstimatedDuration: 10 * time.Minute,
		Builds: []BuildSpec{
			{Start: t0.Add(2 * time.Hour), Building: true},
			{Start: t0, Duration: 5 * time.Minute, Result: "success"},
			{Start: t0.Add(time.Hour), Duration: 7 * time.Minute, Result: "FAILURE", EstimatedDuration: time.Minute},
		},
	})
	require.NoError(t, err)

	builds := j.Builds()
	require.Len(t, builds, 3)
	assert.Equal(t, 3, builds[0].Number())
	assert.Equal(t, 2, builds[1].Number())
	assert.Equal(t, 1, builds[2].Number())

	assert.True(t, j.IsBuilding())
	assert.Equal(t, "job/app/3/", builds[0].URL())
	assert.Equal(t, "app #3", builds[0].DisplayName())
	assert.Equal(t, 10*time.Minute, builds[0].EstimatedDuration())
	assert.Equal(t, time.Minute, builds[1].EstimatedDuration())
	assert.Equal(t, domain.ResultSuccess, builds[2].Result())

	first := builds[2]
	assert.Nil(t, first.PreviousBuild())
	require.NotNil(t, first.NextBuild())
	assert.Equal(t, 2, first.NextBuild().Number())
	assert.Nil(t, builds[0].NextBuild())
	assert.Equal(t, 2, builds[0].PreviousBuild().Number())

	assert.Equal(t, 50, j.HealthScore())
}

func TestJob_LastBuildsOverThreshold(t *testing.T) {
	var builds []BuildSpec
	results := []string{"SUCCESS", "FAILURE", "ABORTED", "UNSTABLE", "SUCCESS", "NOT_BUILT", "SUCCESS"}
	for i, r := range results {
		builds = append(builds, BuildSpec{Start: t0.Add(time.Duration(i) * time.Hour), Result: r})
	}
	builds = append(builds, BuildSpec{Start: t0.Add(24 * time.Hour), Building: true})

	j, err := NewJob(JobSpec{Name: "app", Builds: builds})
	require.NoError(t, err)

	all := j.LastBuildsOverThreshold(5, domain.ResultAborted)
	require.Len(t, all, 5)
	assert.Equal(t, 7, all[0].Number(), "running build is skipped")
	assert.Equal(t, 3, all[4].Number())

	failing := j.LastBuildsOverThreshold(10, domain.ResultFailure)
	var numbers []int
	for _, r := range failing {
		numbers = append(numbers, r.Number())
	}
	assert.Equal(t, []int{7, 5, 4, 2, 1}, numbers)

	assert.Empty(t, j.LastBuildsOverThreshold(0, domain.ResultAborted))
}

func TestJob_Triggers(t *testing.T) {
	j, err := NewJob(JobSpec{
		Name: "app",
		Triggers: []TriggerSpec{
			{Spec: "H * * * *"},
			{Kind: "POLL", Spec: "H/5 * * * *"},
			{Schedules: []ScheduleSpec{{Expression: "0 3 * * *", Timezone: "Europe/Berlin", Parameters: map[string]string{"env": "prod"}}}},
		},
	})
	require.NoError(t, err)

	triggers := j.Triggers()
	require.Len(t, triggers, 3)
	assert.Equal(t, domain.TriggerTimer, triggers[0].Kind)
	assert.True(t, triggers[1].IsPolling())
	assert.Equal(t, "prod", triggers[2].Schedules[0].Parameters["env"])

	// callers get a copy
	triggers[0].Spec = ""
	assert.Equal(t, "H * * * *", j.Triggers()[0].Spec)
}

func TestNewJob_ExplicitHealthAndBuildable(t *testing.T) {
	health := 90
	buildable := false
	j, err := NewJob(JobSpec{Name: "disabled", Health: &health, Buildable: &buildable})
	require.NoError(t, err)
	assert.Equal(t, 90, j.HealthScore())
	assert.False(t, j.IsBuildable())
}
