package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-fulfillment/internal/jobs"
)

// Reevaluator re-runs alert evaluation for every product.
type Reevaluator interface {
	ReevaluateAll(ctx context.Context) (int, error)
}

// KeyPruner drops processed event keys older than a retention window.
type KeyPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DefaultKeyRetention keeps event keys well past asynq's retry horizon.
const DefaultKeyRetention = 7 * 24 * time.Hour

// AlertSweepJob catches products whose alerts were missed, for instance
// after thresholds changed. When Keys is set it also prunes old event keys.
type AlertSweepJob struct {
	Ledger       Reevaluator
	Keys         KeyPruner
	KeyRetention time.Duration
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// NewAlertSweepJob initialises the sweep handler.
func NewAlertSweepJob(ledger Reevaluator, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertSweepJob {
	return &AlertSweepJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *AlertSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("alert sweep: handler not configured")
	}
	var payload AlertSweepPayload
	if body := t.Payload(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskInventoryAlertSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evaluated, err := j.Ledger.ReevaluateAll(ctx)
	if err != nil {
		logger.Error("alert sweep failed", slog.Int("evaluated", evaluated), slog.Any("error", err))
		return err
	}
	logger.Info("alert sweep finished", slog.Int("evaluated", evaluated))
	j.pruneKeys(ctx, logger)
	return nil
}

// pruneKeys failures are logged only; a stale key costs a table row.
func (j *AlertSweepJob) pruneKeys(ctx context.Context, logger *slog.Logger) {
	if j.Keys == nil {
		return
	}
	retention := j.KeyRetention
	if retention <= 0 {
		retention = DefaultKeyRetention
	}
	removed, err := j.Keys.Prune(ctx, retention)
	if err != nil {
		logger.Warn("prune event keys", slog.Any("error", err))
		return
	}
	if removed > 0 {
		logger.Info("pruned event keys", slog.Int64("removed", removed))
	}
}
