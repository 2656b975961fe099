// Package moment provides immutable points in time and half-open ranges
// between them.
package moment

import "time"

// DateTimeLayout is the layout used by String.
const DateTimeLayout = "2006-01-02T15:04:05"

// Moment is a single instant. The zero value is the zero time.
type Moment struct {
	t time.Time
}

// New wraps t.
func New(t time.Time) Moment {
	return Moment{t: t}
}

// Now returns the current wall-clock instant.
func Now() Moment {
	return Moment{t: time.Now()}
}

// FromMillis returns the moment for the given Unix epoch milliseconds in loc.
func FromMillis(ms int64, loc *time.Location) Moment {
	if loc == nil {
		loc = time.Local
	}
	return Moment{t: time.UnixMilli(ms).In(loc)}
}

func (m Moment) Time() time.Time  { return m.t }
func (m Moment) UnixMilli() int64 { return m.t.UnixMilli() }
func (m Moment) IsZero() bool     { return m.t.IsZero() }

// NextMinute truncates the seconds of m and adds one minute.
func (m Moment) NextMinute() Moment {
	return Moment{t: TruncateMinute(m.t).Add(time.Minute)}
}

// PreviousMinute truncates the seconds of m and subtracts one minute.
func (m Moment) PreviousMinute() Moment {
	return Moment{t: TruncateMinute(m.t).Add(-time.Minute)}
}

func (m Moment) Before(o Moment) bool { return m.t.Before(o.t) }
func (m Moment) After(o Moment) bool  { return m.t.After(o.t) }
func (m Moment) Equal(o Moment) bool  { return m.t.Equal(o.t) }

// Compare returns -1, 0 or +1 following instant ordering.
func (m Moment) Compare(o Moment) int {
	return m.t.Compare(o.t)
}

// Add returns m shifted by d.
func (m Moment) Add(d time.Duration) Moment {
	return Moment{t: m.t.Add(d)}
}

// Sub returns m - o.
func (m Moment) Sub(o Moment) time.Duration {
	return m.t.Sub(o.t)
}

func (m Moment) String() string {
	return m.t.Format(DateTimeLayout)
}

// TruncateMinute zeroes the wall-clock seconds and sub-seconds of t.
// Unlike time.Truncate it operates on the location's wall clock, so zones
// with non-minute offsets still land on a displayed minute boundary.
func TruncateMinute(t time.Time) time.Time {
	return t.Add(-time.Duration(t.Second())*time.Second - time.Duration(t.Nanosecond()))
}
