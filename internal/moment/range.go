package moment

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidRange is returned when a range's start does not precede its end.
var ErrInvalidRange = errors.New("invalid range")

// Range is the half-open interval [Start, End).
type Range struct {
	start Moment
	end   Moment
}

// NewRange returns [start, end). It fails with ErrInvalidRange unless start
// is strictly before end.
func NewRange(start, end Moment) (Range, error) {
	if !IsValidRange(start, end) {
		return Range{}, errors.Wrapf(ErrInvalidRange, "start has to be before end: %s < %s", start, end)
	}
	return Range{start: start, end: end}, nil
}

// NewTimeRange is NewRange for plain times.
func NewTimeRange(start, end time.Time) (Range, error) {
	return NewRange(New(start), New(end))
}

// IsValidRange reports whether [a, b) would be a valid range.
func IsValidRange(a, b Moment) bool {
	return a.Before(b)
}

func (r Range) Start() Moment { return r.start }
func (r Range) End() Moment   { return r.end }

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.end.Sub(r.start)
}

// Contains reports whether m lies in [Start, End).
func (r Range) Contains(m Moment) bool {
	return !m.Before(r.start) && m.Before(r.end)
}

func (r Range) String() string {
	return r.start.String() + " - " + r.end.String()
}
