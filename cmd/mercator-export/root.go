package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	noColor   bool
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "mercator-export",
	Short: "Mercator Export - normalize collected records into the export schema",
	Long: `Mercator Export maps raw records collected from endpoints (files,
processes, network connections, registry keys, memory artifacts and more)
onto a fixed, flat, versioned schema of Exported* records.

It can:
  - Export raw records from JSONL files or the record store
  - Deliver exported records to JSON, JSONL, CSV, SQLite and AMQP sinks
  - Snapshot the local host into raw records
  - Run scheduled export jobs, a spool directory watcher and retention

Without --config the built-in defaults are used; every setting can be
overridden with MERCATOR_EXPORT_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		if _, err := cli.ParseFormat(outputFmt); err != nil {
			return err
		}
		return nil
	},
}

// Execute runs the root command and exits with the code for its error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json, table")
}
