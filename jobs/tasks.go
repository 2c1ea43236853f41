// Package jobs holds the background workloads that run outside the request
// path: the low-stock scan and the stock snapshot rebuild. Both read the
// ledger; neither ever writes stock.
package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue all background jobs run on.
	QueueDefault = "default"
	// TaskLowStockScan compares derived stock against product minimums.
	TaskLowStockScan = "stock:low_scan"
	// TaskStockSnapshot re-materializes the cached stock aggregates.
	TaskStockSnapshot = "stock:snapshot"
)

// ScanPayload tags one job run for log correlation.
type ScanPayload struct {
	RunID string `json:"run_id"`
}

// NewLowStockScanTask constructs a low-stock scan task with a fresh run id.
func NewLowStockScanTask() (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{RunID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// NewStockSnapshotTask constructs a snapshot rebuild task.
func NewStockSnapshotTask() (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{RunID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshot, data), nil
}
