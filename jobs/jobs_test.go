package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/barledger/internal/jobs"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/shared"
)

type stubExpirer struct {
	affected int
	err      error
	calls    int
}

func (s *stubExpirer) ExpireSubscriptions(context.Context) (int, error) {
	s.calls++
	return s.affected, s.err
}

type memRecords struct {
	records map[uuid.UUID]ledger.Record
}

func (m memRecords) GetRecord(_ context.Context, tenantID int64, id uuid.UUID) (ledger.Record, error) {
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID {
		return ledger.Record{}, ledger.ErrRecordNotFound
	}
	return rec, nil
}

type memAudit struct {
	logs []shared.AuditLog
	err  error
}

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "x", Queue: QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSubscriptionSweepRunsExpirer(t *testing.T) {
	expirer := &stubExpirer{affected: 3}
	job := NewSubscriptionSweepJob(expirer, testLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewSubscriptionSweepTask(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, expirer.calls)
}

func TestSubscriptionSweepPropagatesFailure(t *testing.T) {
	expirer := &stubExpirer{err: shared.ErrUpstream}
	job := NewSubscriptionSweepJob(expirer, testLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSubscriptionSweep, nil))
	require.ErrorIs(t, err, shared.ErrUpstream)
}

func TestSubscriptionSweepRejectsBadPayload(t *testing.T) {
	job := NewSubscriptionSweepJob(&stubExpirer{}, testLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskSubscriptionSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func savedRecord() ledger.Record {
	return ledger.Record{
		ID:       uuid.New(),
		TenantID: 7,
		Date:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SavedAt:  time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
		SavedBy:  42,
		Snapshot: ledger.Snapshot{
			Stock:       []ledger.StockLine{{ProductID: 1, Name: "Castel", Quantity: 5, Value: decimal.NewFromInt(5000)}},
			Variance:    decimal.NewFromInt(1000),
			NetVariance: decimal.NewFromInt(500),
			FinalResult: decimal.NewFromInt(700),
		},
	}
}

func TestSnapshotArchiveWritesAuditEntry(t *testing.T) {
	rec := savedRecord()
	audit := &memAudit{}
	job := NewSnapshotArchiveJob(memRecords{records: map[uuid.UUID]ledger.Record{rec.ID: rec}}, audit, testLogger(), nil)
	task, err := NewSnapshotArchiveTask(SnapshotArchivePayload{TenantID: rec.TenantID, RecordID: rec.ID, SavedBy: rec.SavedBy, Date: "2026-03-01"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	require.Equal(t, int64(7), entry.TenantID)
	require.Equal(t, int64(42), entry.ActorID)
	require.Equal(t, "ledger.snapshot.archived", entry.Action)
	require.Equal(t, rec.ID.String(), entry.EntityID)
	require.Equal(t, "700.00", entry.Meta["final_result"])
	require.Equal(t, "2026-03-01", entry.Meta["date"])
	// one stock line plus eleven totals
	require.Equal(t, 12, entry.Meta["export_rows"])
	require.NoError(t, entry.Validate())
}

func TestSnapshotArchiveSkipsDeletedRecord(t *testing.T) {
	audit := &memAudit{}
	job := NewSnapshotArchiveJob(memRecords{}, audit, testLogger(), nil)
	task, err := NewSnapshotArchiveTask(SnapshotArchivePayload{TenantID: 7, RecordID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, audit.logs)
}

func TestSnapshotArchiveRetriesAuditFailure(t *testing.T) {
	rec := savedRecord()
	audit := &memAudit{err: shared.ErrUpstream}
	job := NewSnapshotArchiveJob(memRecords{records: map[uuid.UUID]ledger.Record{rec.ID: rec}}, audit, testLogger(), nil)
	task, err := NewSnapshotArchiveTask(SnapshotArchivePayload{TenantID: rec.TenantID, RecordID: rec.ID})
	require.NoError(t, err)

	require.ErrorIs(t, job.Handle(context.Background(), task), shared.ErrUpstream)
}

func TestSnapshotArchiveRejectsIncompletePayload(t *testing.T) {
	job := NewSnapshotArchiveJob(memRecords{}, &memAudit{}, testLogger(), nil)
	body, err := json.Marshal(SnapshotArchivePayload{TenantID: 7})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskSnapshotArchive, body)), asynq.SkipRetry)
}

func TestClientEnqueuesArchiveTask(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := &Client{client: enq}
	rec := savedRecord()

	require.NoError(t, client.SnapshotSaved(context.Background(), rec))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskSnapshotArchive, enq.tasks[0].Type())

	var payload SnapshotArchivePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, rec.ID, payload.RecordID)
	require.Equal(t, "2026-03-01", payload.Date)
}

func TestClientTreatsDuplicateEnqueueAsDone(t *testing.T) {
	client := &Client{client: &recordingEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, client.SnapshotSaved(context.Background(), savedRecord()))

	client = &Client{client: &recordingEnqueuer{err: errors.New("redis down")}}
	require.Error(t, client.SnapshotSaved(context.Background(), savedRecord()))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
		status  int
		pending float64
	}{
		{"no inspector", NewHandler(nil, testLogger()), http.StatusOK, 0},
		{"queue info", &Handler{inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, logger: testLogger()}, http.StatusOK, 4},
		{"inspector failure", &Handler{inspector: stubInspector{err: errors.New("down")}, logger: testLogger()}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", tc.handler.MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, QueueDefault, body["queue"])
			require.Equal(t, tc.pending, body["pending"])
		})
	}
}
