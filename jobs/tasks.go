package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSubscriptionSweep deactivates lapsed tenant subscriptions.
	TaskSubscriptionSweep = "identity:subscription_sweep"
	// TaskSnapshotArchive records a saved ledger snapshot in the audit trail.
	TaskSnapshotArchive = "ledger:snapshot_archive"
)

// SubscriptionSweepPayload carries scheduling metadata.
type SubscriptionSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSubscriptionSweepTask constructs the sweep task.
func NewSubscriptionSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SubscriptionSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSubscriptionSweep, body, asynq.Queue(QueueDefault)), nil
}

// SnapshotArchivePayload identifies a saved snapshot record.
type SnapshotArchivePayload struct {
	TenantID int64     `json:"tenant_id"`
	RecordID uuid.UUID `json:"record_id"`
	SavedBy  int64     `json:"saved_by"`
	Date     string    `json:"date"`
}

// NewSnapshotArchiveTask constructs the archive task. The task id is the
// record id so a record is archived at most once.
func NewSnapshotArchiveTask(payload SnapshotArchivePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotArchive, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(payload.RecordID.String()),
		asynq.MaxRetry(5),
	), nil
}
