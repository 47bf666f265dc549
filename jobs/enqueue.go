package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lumbung-erp/lumbung-erp/internal/inbound"
	"github.com/lumbung-erp/lumbung-erp/internal/stock"
)

// Enqueuer submits background tasks after domain transactions commit. It
// implements the stock and inbound integration ports so services stay unaware
// of the queue.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts), logger: logger}
}

// Close releases client resources.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// HandleStockPosted schedules a snapshot refresh for the posted items.
func (e *Enqueuer) HandleStockPosted(ctx context.Context, evt stock.StockPostedEvent) error {
	return e.enqueueRefresh(ctx, evt.ItemIDs)
}

// HandleInboundVerified schedules a snapshot refresh for the items a verified
// receipt touched.
func (e *Enqueuer) HandleInboundVerified(ctx context.Context, evt inbound.InboundVerifiedEvent) error {
	return e.enqueueRefresh(ctx, evt.ItemIDs)
}

func (e *Enqueuer) enqueueRefresh(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	task, err := NewSnapshotRefreshTask(SnapshotRefreshPayload{ItemIDs: itemIDs})
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		e.logger.Warn("enqueue snapshot refresh", slog.Any("error", err))
		return err
	}
	return nil
}
