package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store persists alerts and reorder marks.
type Store interface {
	OpenAlert(ctx context.Context, productID string) (Alert, error)
	CreateAlert(ctx context.Context, alert Alert) error
	GetAlert(ctx context.Context, id string) (Alert, error)
	SaveAlert(ctx context.Context, alert Alert) error
	ListOpen(ctx context.Context) ([]Alert, error)
	ReorderMark(ctx context.Context, productID string) (ReorderMark, error)
	SetReorderMark(ctx context.Context, mark ReorderMark) error
	ClearReorderMark(ctx context.Context, productID string) error
}

// Dispatcher hands an event to whatever delivers it. Failures are logged
// by the engine and never reach the caller of Evaluate.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Config groups engine dependencies.
type Config struct {
	Settings   Settings
	Store      Store
	Tx         shared.Transactor
	Locker     shared.Locker
	Dispatcher Dispatcher
	Audit      shared.AuditPort
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Engine evaluates stock levels and raises deduplicated alerts.
type Engine struct {
	settings   atomic.Pointer[Settings]
	store      Store
	tx         shared.Transactor
	locker     shared.Locker
	dispatcher Dispatcher
	audit      shared.AuditPort
	logger     *slog.Logger
	metrics    *observability.Metrics
	validate   *validator.Validate
	now        func() time.Time
}

// NewEngine validates the initial settings and builds an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Tx == nil {
		return nil, errors.New("alerts: store and transactor required")
	}
	e := &Engine{
		store:      cfg.Store,
		tx:         cfg.Tx,
		locker:     cfg.Locker,
		dispatcher: cfg.Dispatcher,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		validate:   validator.New(),
		now:        cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if err := e.validateSettings(cfg.Settings); err != nil {
		return nil, err
	}
	settings := cfg.Settings
	e.settings.Store(&settings)
	return e, nil
}

// Settings returns a copy of the active settings.
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// UpdateSettings replaces the active settings after validation. Evaluations
// already running keep the settings they started with.
func (e *Engine) UpdateSettings(ctx context.Context, actorID string, settings Settings) error {
	if err := e.validateSettings(settings); err != nil {
		return err
	}
	prev := e.settings.Swap(&settings)
	e.logger.Info("inventory settings updated",
		slog.String("actor", actorID),
		slog.Int("low_stock_threshold", settings.LowStockThreshold),
		slog.Int("out_of_stock_threshold", settings.OutOfStockThreshold),
		slog.Bool("auto_reorder", settings.EnableAutoReorder))
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "alerts:settings_update",
			Entity:   "inventory_settings",
			EntityID: "global",
			Meta:     map[string]any{"previous": *prev, "current": settings},
		})
	}
	return nil
}

func (e *Engine) validateSettings(settings Settings) error {
	if err := e.validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Evaluate classifies currentStock and creates an alert when the product
// enters an alerting level without an open alert. It returns the created
// alert or nil. Called inside a stock posting, the alert write joins the
// posting's transaction; notifications and reorder requests are dispatched
// only after that transaction commits.
func (e *Engine) Evaluate(ctx context.Context, productID string, currentStock int) (*Alert, error) {
	if productID == "" {
		return nil, fmt.Errorf("alerts: product required: %w", shared.ErrInvalidInput)
	}
	settings := e.Settings()
	level := Classify(settings, currentStock)

	var created *Alert
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, e.locker, shared.AlertLockKey(productID)); err != nil {
			return err
		}
		if err := e.trackReorder(ctx, settings, productID, currentStock); err != nil {
			return err
		}
		// Open alerts are left untouched on recovery; only Resolve closes them.
		if !level.Alerting() {
			return nil
		}
		if _, err := e.store.OpenAlert(ctx, productID); err == nil {
			return nil
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		alert := Alert{
			ID:           uuid.NewString(),
			ProductID:    productID,
			CurrentStock: currentStock,
			Threshold:    thresholdFor(settings, level),
			Status:       level,
			CreatedAt:    e.now(),
		}
		if err := e.store.CreateAlert(ctx, alert); err != nil {
			if errors.Is(err, ErrOpenAlertExists) {
				return nil
			}
			return err
		}
		created = &alert
		if settings.NotifyAdminsOnLowStock {
			e.schedule(ctx, Event{Kind: EventNotifyAdmins, Key: alert.ID + ":admins", Alert: alert})
		}
		if level == LevelLowStock && settings.NotifySupplierOnLowStock {
			e.schedule(ctx, Event{Kind: EventNotifySupplier, Key: alert.ID + ":supplier", Alert: alert})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		e.metrics.AlertCreated(string(created.Status))
		e.logger.Info("inventory alert created",
			slog.String("alert_id", created.ID),
			slog.String("product_id", productID),
			slog.String("status", string(created.Status)),
			slog.Int("stock", currentStock))
	}
	return created, nil
}

// trackReorder fires one reorder per threshold crossing. The mark is cleared
// once stock is back above the reorder threshold, re-arming the trigger.
func (e *Engine) trackReorder(ctx context.Context, settings Settings, productID string, stock int) error {
	mark, err := e.store.ReorderMark(ctx, productID)
	marked := err == nil
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if stock > settings.AutoReorderThreshold {
		if marked {
			return e.store.ClearReorderMark(ctx, productID)
		}
		return nil
	}
	if !settings.EnableAutoReorder || marked {
		return nil
	}
	mark = ReorderMark{
		ProductID:      productID,
		CrossingID:     uuid.NewString(),
		StockAtRequest: stock,
		RequestedAt:    e.now(),
	}
	if err := e.store.SetReorderMark(ctx, mark); err != nil {
		return err
	}
	key := fmt.Sprintf("reorder:%s:%s", productID, mark.CrossingID)
	e.schedule(ctx, Event{
		Kind: EventReorder,
		Key:  key,
		Reorder: ReorderRequest{
			ProductID:   productID,
			CrossingKey: key,
			Stock:       stock,
			RequestedAt: mark.RequestedAt,
		},
	})
	return nil
}

func (e *Engine) schedule(ctx context.Context, event Event) {
	shared.AfterCommit(ctx, func(ctx context.Context) {
		e.dispatch(ctx, event)
	})
}

func (e *Engine) dispatch(ctx context.Context, event Event) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, event); err != nil {
		e.metrics.DispatchFailed(string(event.Kind))
		e.logger.Warn("alert dispatch failed",
			slog.String("kind", string(event.Kind)),
			slog.String("key", event.Key),
			slog.Any("error", err))
		return
	}
	e.metrics.Dispatched(string(event.Kind))
}

// Acknowledge stamps acknowledgedAt. Acknowledging twice keeps the first
// timestamp.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) (Alert, error) {
	return e.mutate(ctx, alertID, func(alert *Alert, now time.Time) {
		if alert.AcknowledgedAt == nil {
			alert.AcknowledgedAt = &now
		}
	})
}

// Resolve closes the alert so the product may alert again.
func (e *Engine) Resolve(ctx context.Context, alertID string) (Alert, error) {
	return e.mutate(ctx, alertID, func(alert *Alert, now time.Time) {
		alert.ResolvedAt = &now
	})
}

func (e *Engine) mutate(ctx context.Context, alertID string, apply func(*Alert, time.Time)) (Alert, error) {
	var out Alert
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		alert, err := e.store.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if err := shared.Lock(ctx, e.locker, shared.AlertLockKey(alert.ProductID)); err != nil {
			return err
		}
		if alert, err = e.store.GetAlert(ctx, alertID); err != nil {
			return err
		}
		if !alert.Open() {
			return ErrAlertResolved
		}
		apply(&alert, e.now())
		if err := e.store.SaveAlert(ctx, alert); err != nil {
			return err
		}
		out = alert
		return nil
	})
	return out, err
}

// OpenAlert returns the unresolved alert of a product.
func (e *Engine) OpenAlert(ctx context.Context, productID string) (Alert, error) {
	return e.store.OpenAlert(ctx, productID)
}

// ListOpen returns every unresolved alert.
func (e *Engine) ListOpen(ctx context.Context) ([]Alert, error) {
	return e.store.ListOpen(ctx)
}
