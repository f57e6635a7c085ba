/*
Package cli provides command-line helpers for the mercator-export command.

Output Formatting:

Commands accept --output text, json or table. Results that implement Tabular
render through go-pretty:

	formatter := cli.NewFormatter(cli.FormatTable)
	if err := formatter.FormatTo(os.Stdout, cli.ShapeCounts(report.Shapes)); err != nil {
		return err
	}

Batch reports print as a colored status line followed by the exported shapes
and the skipped records:

	cli.PrintReport(os.Stdout, report, verbose)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(0) // unknown total
	exporter := batch.New(m, sink, cfg, batch.WithProgress(progress.Update))

Signal Handling and Exit Codes:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	os.Exit(cli.ExitCode(err))

ExitCode returns 2 for configuration errors and 3 when a batch skipped
records.
*/
package cli
