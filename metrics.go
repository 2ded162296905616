package ringdb

import "github.com/VictoriaMetrics/metrics"

var (
	mSelects  = metrics.NewCounter(`ringdb_selects_total`)
	mInserts  = metrics.NewCounter(`ringdb_inserts_total`)
	mUpdates  = metrics.NewCounter(`ringdb_updates_total`)
	mDeletes  = metrics.NewCounter(`ringdb_deletes_total`)
	mScans    = metrics.NewCounter(`ringdb_scans_total`)
	mForwards = metrics.NewCounter(`ringdb_forward_hops_total`)
	mFlushes  = metrics.NewCounter(`ringdb_flushes_total`)
	mChanges  = metrics.NewCounter(`ringdb_changes_total`)
)
