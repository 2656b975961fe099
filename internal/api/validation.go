package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// MaxWindow bounds the span of a single /events query.
const MaxWindow = 366 * 24 * time.Hour

const dateLayout = "2006-01-02"

type eventsQuery struct {
	window     moment.Range
	now        moment.Moment
	eventsType domain.EventsType
}

func parseEventsQuery(r *http.Request, now time.Time, loc *time.Location) (eventsQuery, error) {
	q := r.URL.Query()

	if q.Get("start") == "" {
		return eventsQuery{}, errors.New("start is required")
	}
	if q.Get("end") == "" {
		return eventsQuery{}, errors.New("end is required")
	}
	start, err := ParseTime(q.Get("start"), loc)
	if err != nil {
		return eventsQuery{}, errors.Wrap(err, "invalid start")
	}
	end, err := ParseTime(q.Get("end"), loc)
	if err != nil {
		return eventsQuery{}, errors.Wrap(err, "invalid end")
	}
	if nowStr := q.Get("now"); nowStr != "" {
		if now, err = ParseTime(nowStr, loc); err != nil {
			return eventsQuery{}, errors.Wrap(err, "invalid now")
		}
	}

	window, err := validateWindow(start, end)
	if err != nil {
		return eventsQuery{}, err
	}
	eventsType, err := parseEventsType(r)
	if err != nil {
		return eventsQuery{}, err
	}

	return eventsQuery{window: window, now: moment.New(now.In(loc)), eventsType: eventsType}, nil
}

// ParseTime accepts RFC3339 or a date, which means midnight in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errors.Newf("%q is neither RFC3339 nor YYYY-MM-DD", value)
}

func validateWindow(start, end time.Time) (moment.Range, error) {
	if !start.Before(end) {
		return moment.Range{}, errors.New("start must be before end")
	}
	if end.Sub(start) > MaxWindow {
		return moment.Range{}, errors.Newf("window exceeds maximum of %d days", int(MaxWindow/(24*time.Hour)))
	}
	return moment.NewTimeRange(start, end)
}

func parseEventsType(r *http.Request) (domain.EventsType, error) {
	t, err := domain.ParseEventsType(r.URL.Query().Get("type"))
	if err != nil {
		return "", errors.New("invalid type: must be all, builds or pollings")
	}
	return t, nil
}
