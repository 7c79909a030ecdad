package picking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store persists pick lists. SetPicked writes a single line so pickers
// working different lines never overwrite each other; its status argument
// only ever moves a PENDING list to IN_PROGRESS.
type Store interface {
	Get(ctx context.Context, id string) (PickList, error)
	Save(ctx context.Context, list PickList) error
	SetPicked(ctx context.Context, pickListID, productID string, picked int, status Status) error
}

// Fulfillments is the slice of the orchestrator the aggregator drives.
type Fulfillments interface {
	Get(ctx context.Context, id string) (fulfillment.Fulfillment, error)
	Transition(ctx context.Context, input fulfillment.TransitionInput) (fulfillment.Fulfillment, error)
}

// Catalog resolves product names missing from fulfillment items.
type Catalog interface {
	ProductName(ctx context.Context, productID string) (string, error)
}

// AggregatorConfig groups optional collaborators.
type AggregatorConfig struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Aggregator builds pick lists and folds picking progress back into the
// fulfillments.
type Aggregator struct {
	store        Store
	tx           shared.Transactor
	locker       shared.Locker
	fulfillments Fulfillments
	catalog      Catalog
	logger       *slog.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewAggregator builds Aggregator. catalog may be nil.
func NewAggregator(store Store, tx shared.Transactor, locker shared.Locker, fulfillments Fulfillments, catalog Catalog, cfg AggregatorConfig) *Aggregator {
	a := &Aggregator{
		store:        store,
		tx:           tx,
		locker:       locker,
		fulfillments: fulfillments,
		catalog:      catalog,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	return a
}

// CreatePickList merges the PENDING fulfillments among ids into one pick
// list. Fulfillments in any other status are skipped; the included ones
// move to PROCESSING in the same unit of work, which keeps each fulfillment
// on at most one open pick list.
func (a *Aggregator) CreatePickList(ctx context.Context, ids []string, actorID string) (PickList, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return PickList{}, ErrEmptyBatch
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = shared.FulfillmentLockKey(id)
	}

	var list PickList
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, a.locker, keys...); err != nil {
			return err
		}
		var eligible []fulfillment.Fulfillment
		for _, id := range ids {
			f, err := a.fulfillments.Get(ctx, id)
			if err != nil {
				return err
			}
			if f.Status != fulfillment.StatusPending {
				a.logger.Debug("pick list skips fulfillment", slog.String("fulfillment_id", id), slog.String("status", string(f.Status)))
				continue
			}
			eligible = append(eligible, f)
		}
		if len(eligible) == 0 {
			return ErrEmptyBatch
		}

		items := Merge(eligible)
		for i := range items {
			if items[i].ProductName != "" || a.catalog == nil {
				continue
			}
			name, err := a.catalog.ProductName(ctx, items[i].ProductID)
			if err != nil {
				return err
			}
			items[i].ProductName = name
		}
		list = PickList{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			Items:     items,
			CreatedAt: a.now(),
		}
		for _, f := range eligible {
			list.FulfillmentIDs = append(list.FulfillmentIDs, f.ID)
		}
		if err := a.store.Save(ctx, list); err != nil {
			return err
		}
		for _, f := range eligible {
			if _, err := a.fulfillments.Transition(ctx, fulfillment.TransitionInput{
				FulfillmentID: f.ID,
				Target:        fulfillment.StatusProcessing,
				ActorID:       actorID,
				Notes:         fmt.Sprintf("pick list %s", list.ID),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PickList{}, err
	}
	a.metrics.PickListCreated()
	a.logger.Info("pick list created",
		slog.String("pick_list_id", list.ID),
		slog.Int("fulfillments", len(list.FulfillmentIDs)),
		slog.Int("lines", len(list.Items)))
	return list, nil
}

// RecordPick sets the picked quantity of one line, clamped to
// [0, TotalQuantity]. The first nonzero pick starts the list.
func (a *Aggregator) RecordPick(ctx context.Context, pickListID, productID string, picked int) (PickList, error) {
	var list PickList
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, a.locker, shared.PickLineLockKey(pickListID, productID)); err != nil {
			return err
		}
		current, err := a.store.Get(ctx, pickListID)
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			return ErrPickListClosed
		}
		idx := current.Line(productID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
		}
		qty := clamp(picked, current.Items[idx].TotalQuantity)
		status := current.Status
		if status == StatusPending && qty > 0 {
			status = StatusInProgress
		}
		if err := a.store.SetPicked(ctx, pickListID, productID, qty, status); err != nil {
			return err
		}
		list, err = a.store.Get(ctx, pickListID)
		return err
	})
	if err != nil {
		return PickList{}, err
	}
	return list, nil
}

// Complete closes a fully picked list and advances every contributing
// fulfillment still in PROCESSING to PICKED. Fulfillments put on hold or
// cancelled meanwhile are left alone.
func (a *Aggregator) Complete(ctx context.Context, pickListID, actorID string) (PickList, error) {
	var list PickList
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := a.store.Get(ctx, pickListID)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(current.Items)+len(current.FulfillmentIDs))
		for _, item := range current.Items {
			keys = append(keys, shared.PickLineLockKey(pickListID, item.ProductID))
		}
		if err := shared.Lock(ctx, a.locker, keys...); err != nil {
			return err
		}
		keys = keys[:0]
		for _, id := range current.FulfillmentIDs {
			keys = append(keys, shared.FulfillmentLockKey(id))
		}
		if err := shared.Lock(ctx, a.locker, keys...); err != nil {
			return err
		}

		if current, err = a.store.Get(ctx, pickListID); err != nil {
			return err
		}
		if !current.Status.Open() {
			return ErrPickListClosed
		}
		var short []string
		for _, item := range current.Items {
			if item.PickedQuantity != item.TotalQuantity {
				short = append(short, fmt.Sprintf("%s (%d/%d)", item.ProductID, item.PickedQuantity, item.TotalQuantity))
			}
		}
		if len(short) > 0 {
			return fmt.Errorf("%w: %s", ErrIncompletePick, strings.Join(short, ", "))
		}

		now := a.now()
		current.Status = StatusCompleted
		current.CompletedAt = &now
		if err := a.store.Save(ctx, current); err != nil {
			return err
		}
		for _, id := range current.FulfillmentIDs {
			f, err := a.fulfillments.Get(ctx, id)
			if err != nil {
				return err
			}
			if f.Status != fulfillment.StatusProcessing {
				a.logger.Warn("pick list completion skips fulfillment",
					slog.String("pick_list_id", pickListID),
					slog.String("fulfillment_id", id),
					slog.String("status", string(f.Status)))
				continue
			}
			if _, err := a.fulfillments.Transition(ctx, fulfillment.TransitionInput{
				FulfillmentID: id,
				Target:        fulfillment.StatusPicked,
				ActorID:       actorID,
				Notes:         fmt.Sprintf("pick list %s completed", pickListID),
			}); err != nil {
				return err
			}
		}
		list = current
		return nil
	})
	if err != nil {
		return PickList{}, err
	}
	a.metrics.PickListCompleted()
	a.logger.Info("pick list completed", slog.String("pick_list_id", list.ID), slog.String("actor", actorID))
	return list, nil
}

// Get returns a pick list by id.
func (a *Aggregator) Get(ctx context.Context, id string) (PickList, error) {
	return a.store.Get(ctx, id)
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
