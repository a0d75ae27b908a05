package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/barledger/internal/jobs"
)

// SubscriptionExpirer deactivates lapsed subscriptions and reports how many
// users were affected.
type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context) (int, error)
}

// SubscriptionSweepJob turns off subscriptions past their expiry so the next
// request of an affected user is read-only.
type SubscriptionSweepJob struct {
	Expirer SubscriptionExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSubscriptionSweepJob initialises the sweep handler.
func NewSubscriptionSweepJob(expirer SubscriptionExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SubscriptionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionSweepJob{Expirer: expirer, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *SubscriptionSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Expirer == nil {
		return errors.New("subscription sweep: handler not configured")
	}
	var payload SubscriptionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskSubscriptionSweep)
	defer func() { err = tracker.End(err) }()

	affected, err := j.Expirer.ExpireSubscriptions(ctx)
	j.Metrics.AddExpiredUsers(affected)
	if err != nil {
		j.Logger.Error("subscription sweep failed", slog.Int("affected_users", affected), slog.Any("error", err))
		return err
	}
	if affected > 0 {
		j.Logger.Info("subscriptions expired", slog.Int("affected_users", affected), slog.Time("scheduled_for", payload.ScheduledFor))
	}
	return nil
}
