package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file with defaults and environment overrides and
report every invalid field at once. On success the configured sinks and jobs
are listed with each job's next run.

Examples:
  mercator-export validate export.yaml
  mercator-export validate --config export.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	w := cmd.OutOrStdout()

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			color.New(color.FgRed).Fprintf(w, "✗ Configuration invalid (%d errors)\n", len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
			}
			return cli.NewConfigError("", fmt.Sprintf("%d invalid fields", len(verr.Errors)))
		}
		return cli.NewConfigError("", err.Error())
	}

	color.New(color.FgGreen).Fprintln(w, "✓ Configuration valid")
	printConfigSummary(w, cfg, time.Now())
	return nil
}

func printConfigSummary(w io.Writer, cfg *config.Config, now time.Time) {
	fmt.Fprintf(w, "Store: %s", cfg.Store.Backend)
	if cfg.Store.Backend == "sqlite" {
		fmt.Fprintf(w, " (%s)", cfg.Store.SQLite.Path)
	}
	fmt.Fprintln(w)

	if len(cfg.Sinks) > 0 {
		tw := cli.NewTable()
		tw.AppendHeader(table.Row{"Sink", "Type", "Destination"})
		for _, s := range cfg.Sinks {
			dest := s.Path
			if s.Type == config.SinkAMQP {
				dest = s.AMQP.Exchange
			}
			tw.AppendRow(table.Row{s.Name, s.Type, dest})
		}
		fmt.Fprintln(w, tw.Render())
	}

	if len(cfg.Jobs) > 0 {
		tw := cli.NewTable()
		tw.AppendHeader(table.Row{"Job", "Schedule", "Window", "Sinks", "Next Run"})
		for _, j := range cfg.Jobs {
			next := "-"
			if sched, err := cron.ParseStandard(j.Schedule); err == nil {
				next = sched.Next(now).Format(time.RFC3339)
			}
			tw.AppendRow(table.Row{j.Name, j.Schedule, j.Window, j.Sinks, next})
		}
		fmt.Fprintln(w, tw.Render())
	}

	if cfg.Spool.Enabled {
		fmt.Fprintf(w, "Spool: %s -> %v\n", cfg.Spool.Dir, cfg.Spool.Sinks)
	}
	if cfg.Retention.Days > 0 || cfg.Retention.MaxRecords > 0 {
		fmt.Fprintf(w, "Retention: %d days, max %d records, schedule %q\n",
			cfg.Retention.Days, cfg.Retention.MaxRecords, cfg.Retention.PruneSchedule)
	}
}
