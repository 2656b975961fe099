package cron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// Evaluator is a compiled line of a recurring schedule.
type Evaluator interface {
	// Ceiling returns the earliest instant at or after t that falls in a
	// matching minute. If t's own minute matches, t is returned unchanged.
	Ceiling(t time.Time) (time.Time, bool)
	// Floor returns the latest instant at or before t that falls in a
	// matching minute. If t's own minute matches, t is returned unchanged.
	Floor(t time.Time) (time.Time, bool)
	// Parameters returns the build parameters attached to the line, if any.
	Parameters() map[string]string
}

// searchYears bounds both search directions, matching robfig's Next.
const searchYears = 5

// starBit mirrors robfig's marker for fields written as "*" or "?".
const starBit = 1 << 63

// Tab is a classic cron line.
type Tab struct {
	spec       *cron.SpecSchedule
	line       string
	lineNumber int
}

func (t *Tab) Line() string                  { return t.line }
func (t *Tab) LineNumber() int               { return t.lineNumber }
func (t *Tab) Location() *time.Location      { return t.spec.Location }
func (t *Tab) Parameters() map[string]string { return nil }

func (t *Tab) Ceiling(at time.Time) (time.Time, bool) {
	next := t.spec.Next(moment.TruncateMinute(at.In(t.spec.Location)).Add(-time.Nanosecond))
	if next.IsZero() {
		return time.Time{}, false
	}
	if next.Before(at) {
		return at, true
	}
	return next.In(at.Location()), true
}

func (t *Tab) Floor(at time.Time) (time.Time, bool) {
	s := t.spec
	loc := s.Location
	orig := at.Location()

	start := moment.TruncateMinute(at.In(loc))
	cur := start
	yearLimit := cur.Year() - searchYears

	for cur.Year() >= yearLimit {
		switch {
		case 1<<uint(cur.Month())&s.Month == 0:
			// last minute of the previous month
			cur = rewind(cur, time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, loc).Add(-time.Minute))
		case !dayMatches(s, cur):
			cur = rewind(cur, time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, loc).Add(-time.Minute))
		case 1<<uint(cur.Hour())&s.Hour == 0:
			// Instant arithmetic: a repeated wall hour must not resolve to
			// its later occurrence.
			cur = cur.Add(-time.Duration(cur.Minute()+1) * time.Minute)
		case 1<<uint(cur.Minute())&s.Minute == 0:
			cur = cur.Add(-time.Minute)
		default:
			if cur.Equal(start) {
				return at, true
			}
			return cur.In(orig), true
		}
	}
	return time.Time{}, false
}

// rewind returns target, or one minute before cur when a daylight saving
// transition resolved target to an instant that is not earlier than cur.
// The walk therefore always moves strictly backward.
func rewind(cur, target time.Time) time.Time {
	if target.Before(cur) {
		return target
	}
	return cur.Add(-time.Minute)
}

// dayMatches applies cron's day-of-month / day-of-week rule: if either field
// is a wildcard both must match, otherwise either may.
func dayMatches(s *cron.SpecSchedule, t time.Time) bool {
	domMatch := 1<<uint(t.Day())&s.Dom > 0
	dowMatch := 1<<uint(t.Weekday())&s.Dow > 0
	if s.Dom&starBit > 0 || s.Dow&starBit > 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// ParameterizedTab is a cron line carrying build parameters.
type ParameterizedTab struct {
	*Tab
	params map[string]string
}

// WithParameters attaches params to tab.
func WithParameters(tab *Tab, params map[string]string) *ParameterizedTab {
	return &ParameterizedTab{Tab: tab, params: params}
}

func (p *ParameterizedTab) Parameters() map[string]string {
	out := make(map[string]string, len(p.params))
	for k, v := range p.params {
		out[k] = v
	}
	return out
}
