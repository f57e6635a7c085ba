// Package retention prunes the raw record store.
//
// A Pruner deletes records whose timestamp is older than the configured
// number of days, then trims the oldest records until at most MaxRecords
// remain. With ArchiveBeforeDelete set, records are first written to an
// lz4-compressed JSONL file under ArchivePath, in the same format the spool
// and the export command read, so an archive can be replayed:
//
//	pruner := retention.NewPruner(st, &cfg.Retention, retention.WithMetrics(m))
//	deleted, err := pruner.Prune(ctx)
//
// A Scheduler runs the pruner on the PruneSchedule cron expression:
//
//	sched := retention.NewScheduler(pruner)
//	if err := sched.Start(ctx); err != nil {
//		return err
//	}
//	defer sched.Stop()
package retention
