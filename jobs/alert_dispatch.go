package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	jobmetrics "github.com/odyssey-erp/odyssey-fulfillment/internal/jobs"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// IdempotencyGuard remembers processed event keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AlertJob delivers queued alert notifications and reorder requests.
type AlertJob struct {
	Notifier alerts.Notifier
	Reorder  alerts.ReorderTrigger
	Guard    IdempotencyGuard
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc for the three event task types.
func (j *AlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("alert job: handler not configured")
	}
	event, err := DecodeEvent(t)
	if err != nil {
		j.logger().Warn("drop malformed alert task", slog.String("type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(t.Type())
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("type", t.Type()), slog.String("key", event.Key))
	if j.Guard != nil {
		if err := j.Guard.CheckAndInsert(ctx, event.Key, t.Type()); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("alert task already delivered")
				return nil
			}
			return err
		}
	}
	if err := alerts.Deliver(ctx, j.Notifier, j.Reorder, event); err != nil {
		if j.Guard != nil {
			if delErr := j.Guard.Delete(context.WithoutCancel(ctx), event.Key); delErr != nil {
				logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		logger.Error("alert task failed", slog.Any("error", err))
		return err
	}
	logger.Info("alert task delivered")
	return nil
}

func (j *AlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
