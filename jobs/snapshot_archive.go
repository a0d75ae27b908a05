package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/barledger/internal/jobs"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// RecordReader loads a saved snapshot record.
type RecordReader interface {
	GetRecord(ctx context.Context, tenantID int64, id uuid.UUID) (ledger.Record, error)
}

// AuditWriter appends to the audit trail.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotArchiveJob copies the headline figures of a saved snapshot into the
// audit trail, together with the size of its tabular export.
type SnapshotArchiveJob struct {
	Records RecordReader
	Audit   AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSnapshotArchiveJob initialises the archive handler.
func NewSnapshotArchiveJob(records RecordReader, audit AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotArchiveJob{
		Records: records,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle archives one record. Records deleted before the job runs are skipped.
func (j *SnapshotArchiveJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Records == nil || j.Audit == nil {
		return errors.New("snapshot archive: handler not configured")
	}
	var payload SnapshotArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TenantID == 0 || payload.RecordID == uuid.Nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskSnapshotArchive)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(slog.Int64("tenant_id", payload.TenantID), slog.String("record_id", payload.RecordID.String()))
	rec, err := j.Records.GetRecord(ctx, payload.TenantID, payload.RecordID)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		logger.Info("snapshot gone before archive")
		return nil
	}
	if err != nil {
		return err
	}

	s := rec.Snapshot
	rows := ledger.ExportRows(s)
	err = j.Audit.Record(ctx, shared.AuditLog{
		TenantID: rec.TenantID,
		ActorID:  rec.SavedBy,
		Action:   "ledger.snapshot.archived",
		Entity:   "ledger_snapshot",
		EntityID: rec.ID.String(),
		Meta: map[string]any{
			"date":         rec.Date.Format(time.DateOnly),
			"export_rows":  len(rows) - 1,
			"variance":     s.Variance.StringFixed(2),
			"net_variance": s.NetVariance.StringFixed(2),
			"final_result": s.FinalResult.StringFixed(2),
			"orphans":      len(s.Orphans),
		},
		At: j.clock(),
	})
	if err != nil {
		logger.Error("archive snapshot", slog.Any("error", err))
		return err
	}
	j.Metrics.IncArchived()
	logger.Info("snapshot archived", slog.String("final_result", s.FinalResult.StringFixed(2)))
	return nil
}
