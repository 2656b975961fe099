package cron

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// ErrMalformedSchedule is returned for a schedule line that cannot be compiled.
var ErrMalformedSchedule = errors.New("malformed schedule")

// Parser compiles single schedule lines into evaluators.
type Parser struct {
	parser     cron.Parser
	defaultLoc *time.Location
}

// NewParser returns a parser for minute-granular five-field expressions.
// Lines without an explicit timezone are evaluated in defaultLoc
// (time.Local when nil).
func NewParser(defaultLoc *time.Location) *Parser {
	if defaultLoc == nil {
		defaultLoc = time.Local
	}
	return &Parser{
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		defaultLoc: defaultLoc,
	}
}

// DefaultLocation returns the location used for lines without a timezone.
func (p *Parser) DefaultLocation() *time.Location {
	return p.defaultLoc
}

// Parse compiles one schedule line. lineNumber is only used in error
// messages. Hash tokens are resolved with hash; an empty timezone selects the
// parser's default location.
func (p *Parser) Parse(line string, lineNumber int, hash Hash, timezone string) (*Tab, error) {
	loc := p.defaultLoc
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedSchedule, "line %d: load timezone %q: %v", lineNumber, timezone, err)
		}
		loc = l
	}

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "TZ=") || strings.HasPrefix(line, "CRON_TZ=") {
		return nil, errors.Wrapf(ErrMalformedSchedule, "line %d: timezone is only allowed on the first line", lineNumber)
	}

	expr, err := expandHash(line, hash.rand())
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedSchedule, "line %d: %v", lineNumber, err)
	}

	sched, err := p.parser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedSchedule, "line %d: parse cron %q: %v", lineNumber, line, err)
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedSchedule, "line %d: unsupported schedule %q", lineNumber, line)
	}
	spec.Location = loc

	return &Tab{spec: spec, line: line, lineNumber: lineNumber}, nil
}

// ParseParameterized compiles a line of the form "<cron> % k1=v1;k2=v2".
func (p *Parser) ParseParameterized(line string, lineNumber int, hash Hash, timezone string) (*ParameterizedTab, error) {
	expr, params := SplitParameters(line)
	tab, err := p.Parse(expr, lineNumber, hash, timezone)
	if err != nil {
		return nil, err
	}
	return &ParameterizedTab{Tab: tab, params: params}, nil
}

// SplitParameters splits a parameterized line into its cron part and the
// parameter map following the first '%'.
func SplitParameters(line string) (string, map[string]string) {
	expr, rest, found := strings.Cut(line, "%")
	if !found {
		return line, nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(rest, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return expr, params
}

// ValidTimezone returns name if it is a loadable IANA zone, or "" otherwise.
func ValidTimezone(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}
