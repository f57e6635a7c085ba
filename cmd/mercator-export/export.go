package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/batch"
	"mercator-hq/exporter/pkg/export/mapper"
	"mercator-hq/exporter/pkg/export/schema"
	"mercator-hq/exporter/pkg/export/shapes"
	"mercator-hq/exporter/pkg/export/sink"
	"mercator-hq/exporter/pkg/export/store"
)

var exportFlags struct {
	inputs      []string
	fromStore   bool
	kinds       []string
	clientURN   string
	timeRange   string
	sinks       []string
	out         string
	sinkType    string
	pretty      bool
	workers     int
	contents    bool
	hashes      bool
	follow      bool
	annotations []string
	validate    bool
	quiet       bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export raw records to the export schema",
	Long: `Map raw records onto Exported* records and write them to a sink.

Records are read from JSONL files (one raw record per line, optionally lz4
compressed) or from the record store. Records that cannot be mapped are
skipped and listed in the report; the command then exits with code 3.

Examples:
  # Export a file to compressed JSONL
  mercator-export export --input records.jsonl --out export.jsonl.lz4

  # Export one client's processes from the last day to configured sinks
  mercator-export export --from-store --kind Process --client C.1000000000000000 \
    --time-range "2026-10-15T00:00:00Z/2026-10-16T00:00:00Z" --sink siem

  # CSV, one file per shape
  mercator-export export --input records.jsonl --out ./csv --type csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	f := exportCmd.Flags()
	f.StringSliceVarP(&exportFlags.inputs, "input", "i", nil, "raw record JSONL files (.jsonl or .jsonl.lz4)")
	f.BoolVar(&exportFlags.fromStore, "from-store", false, "read raw records from the record store")
	f.StringSliceVar(&exportFlags.kinds, "kind", nil, "store query: raw record kinds")
	f.StringVar(&exportFlags.clientURN, "client", "", "store query: client URN")
	f.StringVar(&exportFlags.timeRange, "time-range", "", "store query: RFC3339 interval start/end")
	f.StringSliceVar(&exportFlags.sinks, "sink", nil, "configured sink names to write to")
	f.StringVar(&exportFlags.out, "out", "", "write to this path instead of configured sinks")
	f.StringVar(&exportFlags.sinkType, "type", "", "sink type for --out: json, jsonl, csv, sqlite (inferred from the extension)")
	f.BoolVar(&exportFlags.pretty, "pretty", false, "indent JSON output")
	f.IntVarP(&exportFlags.workers, "workers", "w", 0, "records mapped concurrently (config when 0)")
	f.BoolVar(&exportFlags.contents, "contents", false, "include file contents")
	f.BoolVar(&exportFlags.hashes, "hashes", true, "include previously computed file hashes")
	f.BoolVar(&exportFlags.follow, "follow", false, "resolve referenced objects through the record store")
	f.StringSliceVar(&exportFlags.annotations, "annotation", nil, "annotation attached to every record (repeatable)")
	f.BoolVar(&exportFlags.validate, "validate", false, "check every record against its shape's JSON Schema before writing")
	f.BoolVarP(&exportFlags.quiet, "quiet", "q", false, "no progress output")

	_ = exportCmd.RegisterFlagCompletionFunc("kind", completeKinds)
	_ = exportCmd.RegisterFlagCompletionFunc("sink", completeSinks)
	_ = exportCmd.RegisterFlagCompletionFunc("type", cobra.FixedCompletions(
		[]string{config.SinkJSON, config.SinkJSONL, config.SinkCSV, config.SinkSQLite},
		cobra.ShellCompDirectiveNoFileComp))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flushTraces, err := setupTracing(cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	if len(exportFlags.inputs) > 0 && exportFlags.fromStore {
		return cli.NewConfigError("--input", "cannot be combined with --from-store")
	}
	if len(exportFlags.inputs) == 0 && !exportFlags.fromStore {
		return cli.NewConfigError("--input", "no records to export: pass --input files or --from-store")
	}

	opts := exportOptions(cmd, cfg)

	// The store is needed to read from it and to follow references.
	var st store.Store
	if exportFlags.fromStore || opts.FollowURNs {
		if st, err = store.Open(&cfg.Store); err != nil {
			return cli.NewCommandError("export", fmt.Errorf("failed to open record store: %w", err))
		}
		defer st.Close()
	}

	var src export.Source
	if exportFlags.fromStore {
		q, err := exportQuery()
		if err != nil {
			return cli.NewConfigError("--time-range", err.Error())
		}
		src = store.Source(st, q)
	} else {
		src = fileSources(exportFlags.inputs)
	}

	registry := shapes.MustRegistry()
	out, err := openExportSinks(cfg, registry)
	if err != nil {
		return err
	}

	var mopts []mapper.Option
	if st != nil {
		mopts = append(mopts, mapper.WithResolver(st))
	}

	workers := exportFlags.workers
	if workers <= 0 {
		workers = cfg.Export.Workers
	}

	var bopts []batch.Option
	progress := cli.NewProgressReporter(cmd.ErrOrStderr())
	if !exportFlags.quiet {
		progress.Start(0)
		bopts = append(bopts, batch.WithProgress(progress.Update))
	}

	validate := cfg.Export.ValidateRecords
	if cmd.Flags().Changed("validate") {
		validate = exportFlags.validate
	}

	exporter := batch.New(mapper.New(registry, mopts...), out, batch.Config{
		Workers:  workers,
		Options:  opts,
		Validate: validate,
	}, bopts...)
	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	report, runErr := exporter.Export(ctx, src)
	if !exportFlags.quiet {
		progress.Finish()
	}
	closeErr := out.Close()

	if report != nil {
		if err := printReport(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	}
	if err := errors.Join(runErr, closeErr); err != nil {
		return cli.NewCommandError("export", err)
	}
	if report != nil && report.Failed > 0 {
		return &cli.PartialError{Failed: report.Failed, Total: report.Processed, Err: report.Err()}
	}
	return nil
}

// exportOptions starts from the configured options and applies the flags
// that were set explicitly.
func exportOptions(cmd *cobra.Command, cfg *config.Config) export.Options {
	opts := cfg.Export.Options()
	f := cmd.Flags()
	if f.Changed("contents") {
		opts.ExportFilesContents = exportFlags.contents
	}
	if f.Changed("hashes") {
		opts.ExportFilesHashes = exportFlags.hashes
	}
	if f.Changed("follow") {
		opts.FollowURNs = exportFlags.follow
	}
	opts.Annotations = append(opts.Annotations, exportFlags.annotations...)
	return opts
}

func exportQuery() (*store.Query, error) {
	since, until, err := parseTimeRange(exportFlags.timeRange)
	if err != nil {
		return nil, err
	}
	q := &store.Query{
		ClientURN: exportFlags.clientURN,
		Since:     since,
		Until:     until,
		OrderBy:   store.OrderByTimestamp,
	}
	for _, k := range exportFlags.kinds {
		q.Kinds = append(q.Kinds, export.Kind(k))
	}
	return q, nil
}

func openExportSinks(cfg *config.Config, registry *schema.Registry) (export.Sink, error) {
	switch {
	case exportFlags.out != "" && len(exportFlags.sinks) > 0:
		return nil, cli.NewConfigError("--out", "cannot be combined with --sink")
	case exportFlags.out != "":
		typ := exportFlags.sinkType
		if typ == "" {
			typ = sinkTypeFor(exportFlags.out)
		}
		s, err := sink.Open(config.SinkConfig{
			Name:   "out",
			Type:   typ,
			Path:   exportFlags.out,
			Pretty: exportFlags.pretty,
		}, registry)
		if err != nil {
			return nil, cli.NewCommandError("export", err)
		}
		return s, nil
	case len(exportFlags.sinks) > 0:
		m, err := sink.OpenAll(cfg, exportFlags.sinks, registry)
		if err != nil {
			return nil, cli.NewCommandError("export", err)
		}
		return m, nil
	default:
		return nil, cli.NewConfigError("--out", "no destination: pass --out or --sink")
	}
}

func printReport(w io.Writer, report *batch.Report) error {
	format, _ := cli.ParseFormat(outputFmt)
	if format == cli.FormatJSON {
		report.SortEntries()
		return cli.NewFormatter(format).FormatTo(w, report)
	}
	cli.PrintReport(w, report, verbose)
	return nil
}

// fileSources reads the files one after another as a single source.
type fileSources []string

func (fs fileSources) Records(ctx context.Context) (<-chan export.RawRecord, <-chan error) {
	out := make(chan export.RawRecord, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for _, path := range fs {
			if _, err := os.Stat(path); err != nil {
				errCh <- err
				return
			}
			records, errs := store.FileSource{Path: path}.Records(ctx)
			for rec := range records {
				select {
				case out <- rec:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if err := <-errs; err != nil {
				errCh <- fmt.Errorf("%s: %w", path, err)
				return
			}
		}
	}()
	return out, errCh
}
