package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"incipit-hq/incipit/pkg/history"
)

// Config configures the retention policy.
type Config struct {
	// RetentionDays deletes records older than this many days. Zero or a
	// negative value disables age-based pruning.
	RetentionDays int

	// MaxRecords keeps at most this many records. 0 disables count-based
	// pruning.
	MaxRecords int64

	// PruneSchedule is a standard cron expression.
	PruneSchedule string
}

// Observer receives the number of records each pruning run deleted.
// *metrics.Collector implements it.
type Observer interface {
	RecordHistoryPruned(n int64)
}

// Pruner deletes history records according to a retention policy.
type Pruner struct {
	storage  history.Storage
	config   Config
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewPruner creates a pruner for storage. observer and logger may be nil.
func NewPruner(storage history.Storage, config Config, observer Observer, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		storage:  storage,
		config:   config,
		observer: observer,
		logger:   logger.With("component", "history.retention"),
		now:      time.Now,
	}
}

// Prune applies the age limit, then the count limit, and returns the total
// number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.storage.Delete(ctx, &history.Query{Until: &cutoff})
		if err != nil {
			return totalDeleted, p.retentionError(fmt.Errorf("prune by age: %w", err))
		}
		totalDeleted += deleted
		p.logger.Debug("pruned records by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.storage.Trim(ctx, p.config.MaxRecords)
		if err != nil {
			return totalDeleted, p.retentionError(fmt.Errorf("prune by count: %w", err))
		}
		totalDeleted += deleted
		p.logger.Debug("pruned records by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	if totalDeleted > 0 {
		p.logger.Info("history pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
		if p.observer != nil {
			p.observer.RecordHistoryPruned(totalDeleted)
		}
	}

	return totalDeleted, nil
}

func (p *Pruner) retentionError(err error) error {
	return &history.RetentionError{
		RetentionDays: p.config.RetentionDays,
		MaxRecords:    p.config.MaxRecords,
		Cause:         err,
	}
}
