package main

import (
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/config"
)

// logConfigWarnings emits warnings for valid but surprising configurations.
func logConfigWarnings(logger *zap.Logger, cfg config.Config) {
	if !cfg.Formats.Parameterized && !cfg.Formats.Structured {
		logger.Warn("croncal: alternate schedule formats disabled; only plain trigger specs are read")
	}
	if cfg.LastEvents == 0 {
		logger.Warn("croncal: CRONCAL_LAST_EVENTS=0; scheduled events carry no past runs")
	}
	if !cfg.MetricsEnabled {
		logger.Info("croncal: CRONCAL_METRICS_ENABLED not set; metrics disabled")
	}
	if cfg.DefaultTimezone == "Local" {
		logger.Info("croncal: schedules without TZ= use the host timezone", zap.String("default_timezone", cfg.DefaultTimezone))
	}
}
