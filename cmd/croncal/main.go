package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/config"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/logging"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func invalidConfig(err error) error {
	return &exitError{code: exitInvalidConfig, err: err}
}

// run executes the command line and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(stderr, "croncal: %v\n", err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}

// cli holds the state shared by every subcommand.
type cli struct {
	configFile string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:   "croncal",
		Short: "croncal - calendar of past runs and upcoming cron schedules",
		Long: `croncal renders the build history and upcoming cron schedules of a set of
jobs as calendar events.

Jobs are read from a YAML jobs file (CRONCAL_JOBS_FILE) or from PostgreSQL
(CRONCAL_DATABASE_URL). Every setting can be given in a config file or as a
CRONCAL_* environment variable.`,
		Version:       version + " (commit: " + commit + ")",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(c),
		newEventsCmd(c),
		newNextCmd(c),
		newValidateCmd(c),
		newConfigCmd(c),
		newVersionCmd(c),
	)
	return root
}

// loadConfig loads and validates the configuration. Any failure is an
// invalid configuration.
func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return config.Config{}, invalidConfig(err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, invalidConfig(err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as zap's global.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		return nil, invalidConfig(err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and the jobs file (no database connection)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.JobsFile != "" {
				jobs, malformed, err := checkJobsFile(cfg)
				if err != nil {
					return invalidConfig(err)
				}
				fmt.Fprintf(c.out, "jobs file valid (%d jobs", jobs)
				if malformed > 0 {
					fmt.Fprintf(c.out, ", %d malformed schedule lines skipped", malformed)
				}
				fmt.Fprintln(c.out, ")")
			}
			fmt.Fprintln(c.out, "configuration valid")
			return nil
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration as JSON (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configFile)
			if err != nil {
				return invalidConfig(err)
			}
			data, err := cfg.MaskedJSON()
			if err != nil {
				return errors.Wrap(err, "marshal config")
			}
			fmt.Fprintln(c.out, string(data))
			return nil
		},
	}
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.out, "croncal version %s (commit: %s)\n", version, commit)
		},
	}
}
