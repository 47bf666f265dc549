package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lumbung-erp/lumbung-erp/internal/jobs"
	"github.com/lumbung-erp/lumbung-erp/internal/stock"
)

// SnapshotRefreshJob rewarms cached stock snapshots after a ledger-touching
// commit.
type SnapshotRefreshJob struct {
	Stock   *stock.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSnapshotRefreshJob initialises the refresh handler.
func NewSnapshotRefreshJob(stockSvc *stock.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{Stock: stockSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the refresh.
func (j *SnapshotRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("snapshot refresh: handler not configured")
	}
	var payload SnapshotRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.ItemIDs) == 0 {
		return nil
	}

	tracker := j.Metrics.Track(TaskStockSnapshotRefresh)
	err := j.Stock.RefreshSnapshot(ctx, payload.ItemIDs...)
	if err != nil {
		j.logger().Error("snapshot refresh failed", slog.Any("error", err), slog.Int("items", len(payload.ItemIDs)))
	} else {
		j.logger().Info("snapshot refreshed", slog.Int("items", len(payload.ItemIDs)))
	}
	return tracker.End(err)
}

func (j *SnapshotRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
