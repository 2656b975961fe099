// Package cronjob extracts schedule evaluators from job triggers.
package cronjob

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/cron"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

// MetricsSink receives schedule parsing diagnostics.
type MetricsSink interface {
	MalformedScheduleLine()
}

// Formats selects which alternate schedule formats are understood. The
// plain Spec text is always understood.
type Formats struct {
	Parameterized bool
	Structured    bool
}

// AllFormats enables every alternate format.
var AllFormats = Formats{Parameterized: true, Structured: true}

type Service struct {
	now     moment.Moment
	parser  *cron.Parser
	formats Formats
	logger  *zap.Logger
	metrics MetricsSink // optional, nil = disabled
}

// New returns a service pinned at now.
func New(now moment.Moment, parser *cron.Parser, formats Formats) *Service {
	return &Service{
		now:     now,
		parser:  parser,
		formats: formats,
		logger:  zap.NewNop(),
	}
}

func (s *Service) WithLogger(logger *zap.Logger) *Service {
	s.logger = logger
	return s
}

// WithMetrics attaches a metrics sink to the service.
func (s *Service) WithMetrics(sink MetricsSink) *Service {
	s.metrics = sink
	return s
}

func (s *Service) Now() moment.Moment { return s.now }

// Tabs compiles every usable schedule line of trigger. Exactly one format is
// used: structured entries, then the parameterized text, then the plain
// text. Malformed lines are logged and skipped.
func (s *Service) Tabs(trigger domain.Trigger, hash cron.Hash) []cron.Evaluator {
	return s.tabs(trigger, hash, s.logger)
}

func (s *Service) tabs(trigger domain.Trigger, hash cron.Hash, logger *zap.Logger) []cron.Evaluator {
	switch s.format(trigger) {
	case formatStructured:
		return s.structuredTabs(trigger.Schedules, hash, logger)
	case formatParameterized:
		return s.textTabs(trigger.ParameterizedSpec, true, hash, logger)
	case formatPlain:
		return s.textTabs(trigger.Spec, false, hash, logger)
	}
	return nil
}

// CronTriggers returns the job's triggers that carry a usable schedule and
// match eventsType.
func (s *Service) CronTriggers(job domain.Job, eventsType domain.EventsType) []domain.Trigger {
	var triggers []domain.Trigger
	for _, t := range job.Triggers() {
		if s.format(t) == formatNone || !eventsType.Includes(t) {
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers
}

// JobTabs compiles every cron trigger of job, seeding hash tokens with the
// job's full name.
func (s *Service) JobTabs(job domain.Job, eventsType domain.EventsType) []cron.Evaluator {
	hash := cron.HashFrom(job.FullName())
	logger := s.logger.With(zap.String("job", job.FullName()))
	var tabs []cron.Evaluator
	for _, t := range s.CronTriggers(job, eventsType) {
		tabs = append(tabs, s.tabs(t, hash, logger)...)
	}
	return tabs
}

// NextStart returns the earliest occurrence after the current minute across
// all of the job's schedules, truncated to the minute.
func (s *Service) NextStart(job domain.Job, eventsType domain.EventsType) (moment.Moment, bool) {
	from := s.now.NextMinute().Time()
	var next moment.Moment
	found := false
	for _, tab := range s.JobTabs(job, eventsType) {
		ceil, ok := tab.Ceiling(from)
		if !ok {
			continue
		}
		m := moment.New(moment.TruncateMinute(ceil))
		if !found || m.Before(next) {
			next, found = m, true
		}
	}
	return next, found
}

type specFormat int

const (
	formatNone specFormat = iota
	formatPlain
	formatParameterized
	formatStructured
)

func (s *Service) format(t domain.Trigger) specFormat {
	if s.formats.Structured {
		for _, e := range t.Schedules {
			if strings.TrimSpace(e.Expression) != "" {
				return formatStructured
			}
		}
	}
	if s.formats.Parameterized && strings.TrimSpace(t.ParameterizedSpec) != "" {
		return formatParameterized
	}
	if strings.TrimSpace(t.Spec) != "" {
		return formatPlain
	}
	return formatNone
}

func (s *Service) textTabs(text string, parameterized bool, hash cron.Hash, logger *zap.Logger) []cron.Evaluator {
	var tabs []cron.Evaluator
	timezone := ""

	for i, line := range splitLines(text) {
		lineNumber := i + 1
		var params map[string]string
		if parameterized {
			line, params = cron.SplitParameters(line)
		}
		line = strings.TrimSpace(line)

		if lineNumber == 1 && strings.HasPrefix(line, "TZ=") {
			name := strings.TrimPrefix(line, "TZ=")
			timezone = cron.ValidTimezone(name)
			if timezone == "" {
				logger.Warn("cronjob: invalid timezone, using default",
					zap.String("timezone", name),
					zap.Stringer("default", s.parser.DefaultLocation()))
			}
			continue
		}
		if line == "" || line[0] == '#' {
			continue
		}

		tab, err := s.parser.Parse(line, lineNumber, hash, timezone)
		if err != nil {
			s.malformed(logger, line, lineNumber, err)
			continue
		}
		if parameterized {
			tabs = append(tabs, cron.WithParameters(tab, params))
		} else {
			tabs = append(tabs, tab)
		}
	}
	return tabs
}

func (s *Service) structuredTabs(entries []domain.ScheduleEntry, hash cron.Hash, logger *zap.Logger) []cron.Evaluator {
	var tabs []cron.Evaluator
	for i, e := range entries {
		line := strings.TrimSpace(e.Expression)
		if line == "" {
			continue
		}
		timezone := cron.ValidTimezone(e.Timezone)
		if timezone == "" && strings.TrimSpace(e.Timezone) != "" {
			logger.Warn("cronjob: invalid timezone, using default",
				zap.String("timezone", e.Timezone),
				zap.Stringer("default", s.parser.DefaultLocation()))
		}
		tab, err := s.parser.Parse(line, i+1, hash, timezone)
		if err != nil {
			s.malformed(logger, line, i+1, err)
			continue
		}
		tabs = append(tabs, cron.WithParameters(tab, e.Parameters))
	}
	return tabs
}

func (s *Service) malformed(logger *zap.Logger, line string, lineNumber int, err error) {
	logger.Warn("cronjob: unable to parse schedule line",
		zap.String("line", line),
		zap.Int("line_number", lineNumber),
		zap.Error(err))
	if s.metrics != nil {
		s.metrics.MalformedScheduleLine()
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
