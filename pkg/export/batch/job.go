package batch

import (
	"time"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/store"
)

// JobQuery builds the store query for one run of a configured job. The
// window ends at now.
func JobQuery(job config.JobConfig, now time.Time) *store.Query {
	q := &store.Query{ClientURN: job.ClientURN}
	for _, k := range job.Kinds {
		q.Kinds = append(q.Kinds, export.Kind(k))
	}
	if job.Window > 0 {
		since := now.Add(-job.Window)
		q.Since = &since
	}
	q.Until = &now
	q.OrderBy = store.OrderByTimestamp
	return q
}
