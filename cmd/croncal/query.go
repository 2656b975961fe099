package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/api"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/event"
	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/moment"
)

type eventsFlags struct {
	start, end, now string
	eventsType      string
	json            bool
}

func newEventsCmd(c *cli) *cobra.Command {
	f := &eventsFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the events of every job in a window",
		Example: `  croncal events --start 2018-01-03 --end 2018-01-04
  croncal events --start 2018-01-03T08:00:00Z --end 2018-01-03T20:00:00Z --type builds --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runEvents(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.start, "start", "", "window start, RFC3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&f.end, "end", "", "window end, RFC3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&f.now, "now", "", "evaluate as if the current time were this")
	cmd.Flags().StringVar(&f.eventsType, "type", "all", "all, builds or pollings")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *cli) runEvents(cmd *cobra.Command, f *eventsFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return invalidConfig(err)
	}

	start, err := api.ParseTime(f.start, loc)
	if err != nil {
		return errors.Wrap(err, "--start")
	}
	end, err := api.ParseTime(f.end, loc)
	if err != nil {
		return errors.Wrap(err, "--end")
	}
	now := time.Now()
	if f.now != "" {
		if now, err = api.ParseTime(f.now, loc); err != nil {
			return errors.Wrap(err, "--now")
		}
	}
	window, err := moment.NewTimeRange(start, end)
	if err != nil {
		return err
	}
	eventsType, err := domain.ParseEventsType(f.eventsType)
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	_, cal, err := services(cfg, now, logger)
	if err != nil {
		return err
	}
	events, err := cal.Collect(cmd.Context(), p.store, window, eventsType)
	if err != nil {
		return err
	}

	if f.json {
		resp := api.ListEventsResponse{Total: len(events), Events: []api.EventResponse{}}
		for _, e := range events {
			resp.Events = append(resp.Events, api.NewEventResponse(e, false))
		}
		return writeIndentedJSON(c.out, resp)
	}
	return writeEventsTable(c.out, events, loc)
}

func newNextCmd(c *cli) *cobra.Command {
	var eventsType string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "next <job>",
		Short: "Show the next scheduled event of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runNext(cmd, args[0], eventsType, asJSON)
		},
	}
	cmd.Flags().StringVar(&eventsType, "type", "all", "all, builds or pollings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func (c *cli) runNext(cmd *cobra.Command, name, typ string, asJSON bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	eventsType, err := domain.ParseEventsType(typ)
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.store.Job(cmd.Context(), name)
	if err != nil {
		return err
	}
	_, cal, err := services(cfg, time.Now(), logger)
	if err != nil {
		return err
	}
	next := cal.NextScheduledJobEvent(job, eventsType)
	if next == nil || !job.IsBuildable() {
		return errors.Newf("job %q has no scheduled event", name)
	}

	if asJSON {
		return writeIndentedJSON(c.out, api.NewEventResponse(next, true))
	}
	loc, _ := cfg.Location()
	fmt.Fprintf(c.out, "%s next starts %s (estimated %s)\n",
		next.Title(), next.Start().Time().In(loc).Format(time.RFC3339), next.Duration())
	if last := next.LastEvents(); len(last) > 0 {
		fmt.Fprintln(c.out, "\nlast runs:")
		events := make([]event.Event, len(last))
		for i, e := range last {
			events[i] = e
		}
		return writeEventsTable(c.out, events, loc)
	}
	return nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEventsTable(w io.Writer, events []event.Event, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tSTATE\tTYPE\tTITLE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Start().Time().In(loc).Format("2006-01-02 15:04"),
			e.End().Time().In(loc).Format("2006-01-02 15:04"),
			e.State(), e.Type(), e.Title())
	}
	return tw.Flush()
}
