// Package retention prunes history records by age and by count.
//
//	pruner := retention.NewPruner(store, retention.Config{
//	    RetentionDays: 7,
//	    MaxRecords:    100000,
//	    PruneSchedule: "0 3 * * *",
//	}, collector, logger)
//	go retention.NewScheduler(pruner).Run(ctx)
//
// Age pruning runs before count pruning.
package retention
