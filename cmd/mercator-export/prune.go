package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/export/retention"
	"mercator-hq/exporter/pkg/export/store"
)

var pruneFlags struct {
	days       int
	maxRecords int64
	archive    bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention to the record store once",
	Long: `Delete raw records older than the retention period and trim the store
to the configured maximum, oldest first. With --archive the records are
written to an lz4-compressed JSONL file under retention.archive_path before
they are deleted.

Examples:
  mercator-export prune
  mercator-export prune --days 7 --archive`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.days, "days", 0, "override retention.days")
	pruneCmd.Flags().Int64Var(&pruneFlags.maxRecords, "max-records", 0, "override retention.max_records")
	pruneCmd.Flags().BoolVar(&pruneFlags.archive, "archive", false, "archive records before deleting them")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rcfg := cfg.Retention
	if cmd.Flags().Changed("days") {
		rcfg.Days = pruneFlags.days
	}
	if cmd.Flags().Changed("max-records") {
		rcfg.MaxRecords = pruneFlags.maxRecords
	}
	if cmd.Flags().Changed("archive") {
		rcfg.ArchiveBeforeDelete = pruneFlags.archive
	}

	st, err := store.Open(&cfg.Store)
	if err != nil {
		return cli.NewCommandError("prune", fmt.Errorf("failed to open record store: %w", err))
	}
	defer st.Close()

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	deleted, err := retention.NewPruner(st, &rcfg).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s records pruned\n", humanize.Comma(deleted))
	return nil
}
