package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSnapshotRefresh rewarms the cached stock snapshot for items
	// whose ledger changed.
	TaskStockSnapshotRefresh = "stock:snapshot_refresh"
	// TaskLedgerIntegrityScan walks the stock card chain per item and reports
	// violations.
	TaskLedgerIntegrityScan = "stock:ledger_integrity"
)

// SnapshotRefreshPayload names the items to rewarm.
type SnapshotRefreshPayload struct {
	ItemIDs []int64 `json:"item_ids"`
}

// NewSnapshotRefreshTask constructs an Asynq task.
func NewSnapshotRefreshTask(payload SnapshotRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshotRefresh, data), nil
}

// NewLedgerIntegrityTask constructs the cron scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrityScan, nil)
}
