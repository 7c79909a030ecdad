package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store persists fulfillments and their step history.
type Store interface {
	Get(ctx context.Context, id string) (Fulfillment, error)
	GetByOrder(ctx context.Context, orderID string) (Fulfillment, error)
	Insert(ctx context.Context, f Fulfillment) error
	Save(ctx context.Context, f Fulfillment) error
	AppendStep(ctx context.Context, step Step) error
	Steps(ctx context.Context, fulfillmentID string) ([]Step, error)
}

// StockPoster is the ledger write path used on shipment.
type StockPoster interface {
	PostBatch(ctx context.Context, inputs []inventory.PostInput) ([]inventory.Transaction, error)
}

// OrchestratorConfig groups optional collaborators.
type OrchestratorConfig struct {
	Audit   shared.AuditPort
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Orchestrator owns the fulfillment lifecycle.
type Orchestrator struct {
	store    Store
	tx       shared.Transactor
	locker   shared.Locker
	stock    StockPoster
	audit    shared.AuditPort
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
	now      func() time.Time
}

// NewOrchestrator builds Orchestrator.
func NewOrchestrator(store Store, tx shared.Transactor, locker shared.Locker, stock StockPoster, cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		tx:       tx,
		locker:   locker,
		stock:    stock,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		validate: validator.New(),
		now:      cfg.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Create registers the fulfillment of an accepted order in PENDING.
func (o *Orchestrator) Create(ctx context.Context, input CreateInput) (Fulfillment, error) {
	if err := o.validate.Struct(input); err != nil {
		return Fulfillment{}, fmt.Errorf("fulfillment: %w: %v", shared.ErrInvalidInput, err)
	}
	now := o.now()
	f := Fulfillment{
		ID:        uuid.NewString(),
		OrderID:   input.OrderID,
		Status:    StatusPending,
		Items:     make([]Item, 0, len(input.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, in := range input.Items {
		f.Items = append(f.Items, Item{
			OrderID:         input.OrderID,
			ProductID:       in.ProductID,
			SKU:             in.SKU,
			ProductName:     in.ProductName,
			QuantityOrdered: in.Quantity,
			Location:        in.Location,
		})
	}
	err := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.store.Insert(ctx, f); err != nil {
			return err
		}
		return o.store.AppendStep(ctx, Step{
			FulfillmentID: f.ID,
			Status:        StatusPending,
			CompletedBy:   input.ActorID,
			CompletedAt:   now,
			Notes:         "created",
		})
	})
	if err != nil {
		return Fulfillment{}, err
	}
	o.logger.Info("fulfillment created", slog.String("fulfillment_id", f.ID), slog.String("order_id", f.OrderID))
	return f, nil
}

// Transition moves a fulfillment one step along its lifecycle. The SHIPPED
// transition posts a SALE movement per item in the same unit of work, so a
// rejected posting leaves both stock and status untouched.
func (o *Orchestrator) Transition(ctx context.Context, input TransitionInput) (Fulfillment, error) {
	if err := o.validate.Struct(input); err != nil {
		return Fulfillment{}, fmt.Errorf("fulfillment: %w: %v", shared.ErrInvalidInput, err)
	}
	if !input.Target.IsValid() {
		return Fulfillment{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, input.Target)
	}
	var out Fulfillment
	var from Status
	err := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, o.locker, shared.FulfillmentLockKey(input.FulfillmentID)); err != nil {
			return err
		}
		f, err := o.store.Get(ctx, input.FulfillmentID)
		if err != nil {
			return err
		}
		if !f.CanTransitionTo(input.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, input.Target)
		}
		from = f.Status
		now := o.now()
		resuming := f.Status == StatusOnHold
		switch {
		case input.Target == StatusOnHold:
			f.HeldFrom = f.Status
		case resuming:
			f.HeldFrom = ""
		}
		if !resuming {
			if err := o.applySideEffects(ctx, &f, input); err != nil {
				return err
			}
		}
		if input.ShippingLabel != nil {
			label := *input.ShippingLabel
			f.ShippingLabel = &label
		}
		f.Status = input.Target
		f.UpdatedAt = now
		if err := o.store.Save(ctx, f); err != nil {
			return err
		}
		if err := o.store.AppendStep(ctx, Step{
			FulfillmentID: f.ID,
			Status:        f.Status,
			CompletedBy:   input.ActorID,
			CompletedAt:   now,
			Notes:         input.Notes,
		}); err != nil {
			return err
		}
		out = f
		shared.AfterCommit(ctx, func(ctx context.Context) {
			o.transitioned(ctx, from, out, input.ActorID)
		})
		return nil
	})
	if err != nil {
		return Fulfillment{}, err
	}
	return out, nil
}

func (o *Orchestrator) applySideEffects(ctx context.Context, f *Fulfillment, input TransitionInput) error {
	actor := input.ActorID
	switch input.Target {
	case StatusPicked:
		f.PickedBy = &actor
		for i := range f.Items {
			f.Items[i].QuantityPicked = f.Items[i].QuantityOrdered
		}
	case StatusPacked:
		f.PackedBy = &actor
	case StatusShipped:
		if o.stock == nil {
			return errors.New("fulfillment: stock poster not configured")
		}
		movements := make([]inventory.PostInput, 0, len(f.Items))
		for _, item := range f.Items {
			movements = append(movements, inventory.PostInput{
				ProductID: item.ProductID,
				Delta:     -item.QuantityOrdered,
				Reason:    inventory.ReasonSale,
				Notes:     fmt.Sprintf("order %s", f.OrderID),
				Reference: fmt.Sprintf("fulfillment:%s", f.ID),
				ActorID:   actor,
			})
		}
		if _, err := o.stock.PostBatch(ctx, movements); err != nil {
			return fmt.Errorf("fulfillment: ship %s: %w", f.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) transitioned(ctx context.Context, from Status, f Fulfillment, actorID string) {
	o.metrics.Transition(string(f.Status))
	o.logger.Info("fulfillment transitioned",
		slog.String("fulfillment_id", f.ID),
		slog.String("from", string(from)),
		slog.String("to", string(f.Status)),
		slog.String("actor", actorID))
	if o.audit != nil {
		_ = o.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("fulfillment:%s", f.Status),
			Entity:   "fulfillment",
			EntityID: f.ID,
			Meta:     map[string]any{"from": string(from), "order_id": f.OrderID},
			At:       f.UpdatedAt,
		})
	}
}

// Get returns a fulfillment by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (Fulfillment, error) {
	return o.store.Get(ctx, id)
}

// Steps returns the transition history of a fulfillment, oldest first.
func (o *Orchestrator) Steps(ctx context.Context, id string) ([]Step, error) {
	if _, err := o.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.store.Steps(ctx, id)
}
