// Package batch exports many raw records at once.
//
// An Exporter pulls raw records from a channel or an export.Source, maps
// them with a pool of workers and writes every exported record to a sink.
// Workers share nothing but the sink and the report tally, so output order
// is arbitrary; callers that need a stable order collect the output and use
// SortRecords or SortByOriginalTimestamp.
//
// A record that cannot be exported (unknown kind, bad field value, sink
// failure, even a panic in mapping) is skipped and described in the Report.
// Reference lookups that fail under follow_urns are reported as warnings.
// The batch itself fails only when its context ends:
//
//	exp := batch.New(m, out, batch.Config{Workers: 8, Options: opts})
//	report, err := exp.Export(ctx, store.Source(st, q))
//	if err != nil {
//		return err
//	}
//	for _, e := range report.Entries {
//		log.Printf("%s skipped: %s", e.RecordID, e.Message)
//	}
//
// Scheduler runs named jobs on cron schedules using robfig/cron, skipping a
// tick while the previous run of the same job is still going.
package batch
