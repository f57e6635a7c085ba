package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/collector"
	"mercator-hq/exporter/pkg/export/sink"
	"mercator-hq/exporter/pkg/export/store"
)

var collectFlags struct {
	kinds  []string
	out    string
	dryRun bool
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Snapshot this host into raw records",
	Long: `Collect processes, network connections and network interfaces of the
local host as raw records, tagged with a client snapshot of this machine.

Records go to the record store unless --out names a JSONL file, which can
later be exported or dropped into the spool directory.

Examples:
  # Store processes and connections
  mercator-export collect

  # Write interfaces to a compressed file
  mercator-export collect --kind NetworkInterface --out host.jsonl.lz4

  # Show what would be collected
  mercator-export collect --dry-run`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringSliceVar(&collectFlags.kinds, "kind", nil, "kinds to collect: Process, NetworkConnection, NetworkInterface")
	collectCmd.Flags().StringVar(&collectFlags.out, "out", "", "write raw records to this JSONL file instead of the store")
	collectCmd.Flags().BoolVar(&collectFlags.dryRun, "dry-run", false, "collect and summarize without writing")

	_ = collectCmd.RegisterFlagCompletionFunc("kind", cobra.FixedCompletions(
		[]string{string(export.KindProcess), string(export.KindNetworkConnection), string(export.KindNetworkInterface)},
		cobra.ShellCompDirectiveNoFileComp))
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ccfg := cfg.Collector
	if len(collectFlags.kinds) > 0 {
		ccfg.Kinds = collectFlags.kinds
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	res, err := collector.New(ccfg).Collect(ctx)
	if err != nil {
		return cli.NewCommandError("collect", err)
	}

	switch {
	case collectFlags.dryRun:
	case collectFlags.out != "":
		if err := writeRawRecords(collectFlags.out, res.Records); err != nil {
			return cli.NewCommandError("collect", err)
		}
	default:
		st, err := store.Open(&cfg.Store)
		if err != nil {
			return cli.NewCommandError("collect", fmt.Errorf("failed to open record store: %w", err))
		}
		defer st.Close()
		if err := st.Put(ctx, res.Records...); err != nil {
			return cli.NewCommandError("collect", err)
		}
	}

	format, _ := cli.ParseFormat(outputFmt)
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), collectSummary(res))
	}
	printCollectResult(cmd.OutOrStdout(), res)
	return nil
}

func writeRawRecords(path string, records []*export.RawRecord) error {
	w, err := sink.OpenFile(path)
	if err != nil {
		return err
	}
	return errors.Join(store.WriteJSONL(w, records...), w.Close())
}

type collectResult struct {
	Client string         `json:"client_urn"`
	Host   string         `json:"hostname"`
	Kinds  map[string]int `json:"kinds"`
	Errors []string       `json:"errors,omitempty"`
}

func collectSummary(res *collector.Result) collectResult {
	out := collectResult{
		Client: res.Client.URN,
		Host:   res.Client.Hostname,
		Kinds:  map[string]int{},
	}
	for _, r := range res.Records {
		out.Kinds[string(r.Kind)]++
	}
	for _, err := range res.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func printCollectResult(w io.Writer, res *collector.Result) {
	sum := collectSummary(res)
	color.New(color.FgGreen).Fprintf(w, "✓ %s records collected", humanize.Comma(int64(len(res.Records))))
	fmt.Fprintf(w, " from %s (%s)\n", sum.Host, sum.Client)

	tw := cli.NewTable()
	tw.AppendHeader(table.Row{"Kind", "Records"})
	for _, row := range cli.ShapeCounts(sum.Kinds).Rows() {
		tw.AppendRow(row)
	}
	fmt.Fprintln(w, tw.Render())

	for _, e := range sum.Errors {
		color.New(color.FgYellow).Fprintf(w, "  ⚠ %s\n", e)
	}
}
