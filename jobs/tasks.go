package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleIntegrityScan recomputes sale amounts against their lines.
	TaskSaleIntegrityScan = "sales:integrity_scan"
	// TaskStaleApprovalScan flags approval requests stuck in pending.
	TaskStaleApprovalScan = "approvals:stale_scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// SaleIntegrityPayload configures the integrity scan.
type SaleIntegrityPayload struct {
	// Limit caps how many divergent sales are reported per run.
	Limit int `json:"limit"`
}

// NewSaleIntegrityTask constructs an Asynq task.
func NewSaleIntegrityTask(payload SaleIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleIntegrityScan, data), nil
}

// StaleApprovalPayload configures the stale approval scan.
type StaleApprovalPayload struct {
	// MaxAgeHours is how long a request may stay pending before it is flagged.
	MaxAgeHours int `json:"max_age_hours"`
}

// NewStaleApprovalTask constructs an Asynq task.
func NewStaleApprovalTask(payload StaleApprovalPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleApprovalScan, data), nil
}

// IdempotencyCleanupPayload configures the cleanup job.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
