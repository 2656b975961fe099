package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CRONCAL_JOBS_FILE.
const EnvPrefix = "CRONCAL"

// Config holds all configuration for the croncal application.
// Values come from defaults, an optional YAML file and CRONCAL_* environment
// variables, in increasing precedence.
type Config struct {
	// Exactly one job provider must be configured.
	JobsFile    string `mapstructure:"jobs_file"`
	DatabaseURL string `mapstructure:"database_url"`

	HTTPAddr string `mapstructure:"http_addr"`

	// DefaultTimezone applies to schedule lines without a TZ= line.
	DefaultTimezone string  `mapstructure:"default_timezone"`
	Formats         Formats `mapstructure:"formats"`

	// LastEvents is how many past runs a scheduled event exposes.
	LastEvents int `mapstructure:"last_events"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPath    string `mapstructure:"metrics_path"`

	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"`

	HTTPShutdownTimeout    time.Duration `mapstructure:"-"`
	HTTPShutdownTimeoutStr string        `mapstructure:"http_shutdown_timeout"`

	DBOpTimeout    time.Duration `mapstructure:"-"`
	DBOpTimeoutStr string        `mapstructure:"db_op_timeout"`
	DBMaxOpenConns int           `mapstructure:"db_max_open_conns"`

	// DBBreakerThreshold consecutive database failures make provider calls
	// fail fast for DBBreakerCooldown. 0 disables the breaker.
	DBBreakerThreshold   int           `mapstructure:"db_breaker_threshold"`
	DBBreakerCooldown    time.Duration `mapstructure:"-"`
	DBBreakerCooldownStr string        `mapstructure:"db_breaker_cooldown"`

	// ReloadDebounce coalesces bursts of jobs file change notifications.
	ReloadDebounce    time.Duration `mapstructure:"-"`
	ReloadDebounceStr string        `mapstructure:"reload_debounce"`
}

// Formats toggles the alternate schedule formats.
type Formats struct {
	Parameterized bool `mapstructure:"parameterized"`
	Structured    bool `mapstructure:"structured"`
}

// SetDefaults registers every key, which also makes it visible to
// environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("jobs_file", "")
	v.SetDefault("database_url", "")
	v.SetDefault("http_addr", "")
	v.SetDefault("default_timezone", "Local")
	v.SetDefault("formats.parameterized", true)
	v.SetDefault("formats.structured", true)
	v.SetDefault("last_events", 5)
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("http_shutdown_timeout", "10s")
	v.SetDefault("db_op_timeout", "5s")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_breaker_threshold", 5)
	v.SetDefault("db_breaker_cooldown", "30s")
	v.SetDefault("reload_debounce", "250ms")
}

// Load reads configuration from configFile (optional) and the environment.
// Only an unreadable config file is an error; values are checked by
// Validate.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}

	// Support the platform PORT variable as fallback for the HTTP address.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ReloadDebounceStr); err == nil {
		cfg.ReloadDebounce = d
	}
	if d, err := time.ParseDuration(cfg.DBBreakerCooldownStr); err == nil {
		cfg.DBBreakerCooldown = d
	}

	return cfg, nil
}

// Location resolves DefaultTimezone. An empty value means time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.DefaultTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.DefaultTimezone)
	}
	return loc, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		JobsFile            string `json:"jobs_file,omitempty"`
		DatabaseURL         string `json:"database_url,omitempty"`
		HTTPAddr            string `json:"http_addr"`
		DefaultTimezone     string `json:"default_timezone"`
		FormatParameterized bool   `json:"formats_parameterized"`
		FormatStructured    bool   `json:"formats_structured"`
		LastEvents          int    `json:"last_events"`
		MetricsEnabled      bool   `json:"metrics_enabled"`
		MetricsPath         string `json:"metrics_path"`
		LogJSON             bool   `json:"log_json"`
		LogLevel            string `json:"log_level"`
		HTTPShutdownTimeout string `json:"http_shutdown_timeout"`
		DBOpTimeout         string `json:"db_op_timeout"`
		DBMaxOpenConns      int    `json:"db_max_open_conns"`
		DBBreakerThreshold  int    `json:"db_breaker_threshold"`
		DBBreakerCooldown   string `json:"db_breaker_cooldown"`
		ReloadDebounce      string `json:"reload_debounce"`
	}{
		JobsFile:            c.JobsFile,
		DatabaseURL:         maskSecret(c.DatabaseURL),
		HTTPAddr:            c.HTTPAddr,
		DefaultTimezone:     c.DefaultTimezone,
		FormatParameterized: c.Formats.Parameterized,
		FormatStructured:    c.Formats.Structured,
		LastEvents:          c.LastEvents,
		MetricsEnabled:      c.MetricsEnabled,
		MetricsPath:         c.MetricsPath,
		LogJSON:             c.LogJSON,
		LogLevel:            c.LogLevel,
		HTTPShutdownTimeout: c.HTTPShutdownTimeoutStr,
		DBOpTimeout:         c.DBOpTimeoutStr,
		DBMaxOpenConns:      c.DBMaxOpenConns,
		DBBreakerThreshold:  c.DBBreakerThreshold,
		DBBreakerCooldown:   c.DBBreakerCooldownStr,
		ReloadDebounce:      c.ReloadDebounceStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
