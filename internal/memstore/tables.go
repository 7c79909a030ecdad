package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/procurement"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// InventoryStore implements inventory.Store.
type InventoryStore struct{ s *Store }

// AddProduct seeds a product with an opening quantity.
func (r *InventoryStore) AddProduct(id, sku, name string, quantity int) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[id] = inventory.Product{ID: id, SKU: sku, Name: name, Quantity: quantity}
}

// RegisterProduct creates a product with zero stock or refreshes its
// catalogue fields.
func (r *InventoryStore) RegisterProduct(ctx context.Context, p inventory.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if current, ok := r.s.products[p.ID]; ok {
		p.Quantity = current.Quantity
	} else {
		p.Quantity = 0
	}
	put(ctx, r.s.products, p.ID, p)
	return nil
}

func (r *InventoryStore) CurrentStock(_ context.Context, productID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	return p.Quantity, nil
}

func (r *InventoryStore) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[tx.ProductID]; !ok {
		return inventory.ErrProductNotFound
	}
	prev := r.s.transactions[tx.ProductID]
	next := make([]inventory.Transaction, len(prev), len(prev)+1)
	copy(next, prev)
	put(ctx, r.s.transactions, tx.ProductID, append(next, tx))
	return nil
}

func (r *InventoryStore) SetStock(ctx context.Context, productID string, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Quantity = quantity
	put(ctx, r.s.products, productID, p)
	return nil
}

func (r *InventoryStore) ProductName(_ context.Context, productID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return "", inventory.ErrProductNotFound
	}
	return p.Name, nil
}

// Transactions returns the newest entries first.
func (r *InventoryStore) Transactions(_ context.Context, productID string, limit int) ([]inventory.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.transactions[productID]
	out := make([]inventory.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (r *InventoryStore) Products(context.Context) ([]inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]inventory.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AllTransactions returns every entry for productID, oldest first.
func (r *InventoryStore) AllTransactions(productID string) []inventory.Transaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]inventory.Transaction(nil), r.s.transactions[productID]...)
}

// FulfillmentStore implements fulfillment.Store.
type FulfillmentStore struct{ s *Store }

func (r *FulfillmentStore) Get(_ context.Context, id string) (fulfillment.Fulfillment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.fulfillments[id]
	if !ok {
		return fulfillment.Fulfillment{}, fmt.Errorf("%w: %s", fulfillment.ErrNotFound, id)
	}
	return f.Clone(), nil
}

func (r *FulfillmentStore) GetByOrder(_ context.Context, orderID string) (fulfillment.Fulfillment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byOrder[orderID]
	if !ok {
		return fulfillment.Fulfillment{}, fmt.Errorf("%w: order %s", fulfillment.ErrNotFound, orderID)
	}
	return r.s.fulfillments[id].Clone(), nil
}

func (r *FulfillmentStore) Insert(ctx context.Context, f fulfillment.Fulfillment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byOrder[f.OrderID]; ok {
		return fmt.Errorf("%w: %s", fulfillment.ErrDuplicateOrder, f.OrderID)
	}
	put(ctx, r.s.fulfillments, f.ID, f.Clone())
	put(ctx, r.s.byOrder, f.OrderID, f.ID)
	return nil
}

func (r *FulfillmentStore) Save(ctx context.Context, f fulfillment.Fulfillment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.fulfillments[f.ID]; !ok {
		return fmt.Errorf("%w: %s", fulfillment.ErrNotFound, f.ID)
	}
	put(ctx, r.s.fulfillments, f.ID, f.Clone())
	return nil
}

func (r *FulfillmentStore) AppendStep(ctx context.Context, step fulfillment.Step) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev := r.s.steps[step.FulfillmentID]
	next := make([]fulfillment.Step, len(prev), len(prev)+1)
	copy(next, prev)
	put(ctx, r.s.steps, step.FulfillmentID, append(next, step))
	return nil
}

func (r *FulfillmentStore) Steps(_ context.Context, fulfillmentID string) ([]fulfillment.Step, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]fulfillment.Step(nil), r.s.steps[fulfillmentID]...), nil
}

// OrderStore implements fulfillment.OrderSource.
type OrderStore struct{ s *Store }

// AddOrder seeds order header data.
func (r *OrderStore) AddOrder(info fulfillment.OrderInfo) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[info.OrderID] = info
}

// UpsertOrder mirrors an order from the order system.
func (r *OrderStore) UpsertOrder(ctx context.Context, info fulfillment.OrderInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	put(ctx, r.s.orders, info.OrderID, info)
	return nil
}

func (r *OrderStore) Order(_ context.Context, orderID string) (fulfillment.OrderInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	info, ok := r.s.orders[orderID]
	if !ok {
		return fulfillment.OrderInfo{}, fmt.Errorf("%w: %s", fulfillment.ErrOrderNotFound, orderID)
	}
	return info, nil
}

// PickListStore implements picking.Store.
type PickListStore struct{ s *Store }

func (r *PickListStore) Get(_ context.Context, id string) (picking.PickList, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list, ok := r.s.pickLists[id]
	if !ok {
		return picking.PickList{}, fmt.Errorf("%w: %s", picking.ErrNotFound, id)
	}
	return list.Clone(), nil
}

func (r *PickListStore) Save(ctx context.Context, list picking.PickList) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	put(ctx, r.s.pickLists, list.ID, list.Clone())
	return nil
}

// SetPicked updates one line. Status only moves from PENDING to IN_PROGRESS
// here; completion goes through Save.
func (r *PickListStore) SetPicked(ctx context.Context, pickListID, productID string, picked int, status picking.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list, ok := r.s.pickLists[pickListID]
	if !ok {
		return fmt.Errorf("%w: %s", picking.ErrNotFound, pickListID)
	}
	idx := list.Line(productID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", picking.ErrLineNotFound, productID)
	}
	next := list.Clone()
	next.Items[idx].PickedQuantity = picked
	if status == picking.StatusInProgress && next.Status == picking.StatusPending {
		next.Status = picking.StatusInProgress
	}
	r.s.pickLists[pickListID] = next
	prevPicked, prevStatus := list.Items[idx].PickedQuantity, list.Status
	record(ctx, func() {
		cur := r.s.pickLists[pickListID].Clone()
		cur.Items[idx].PickedQuantity = prevPicked
		if prevStatus == picking.StatusPending && cur.Status == picking.StatusInProgress {
			cur.Status = prevStatus
		}
		r.s.pickLists[pickListID] = cur
	})
	return nil
}

// AlertStore implements alerts.Store.
type AlertStore struct{ s *Store }

func (r *AlertStore) OpenAlert(_ context.Context, productID string) (alerts.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.openAlert[productID]
	if !ok {
		return alerts.Alert{}, fmt.Errorf("alerts: no open alert for %s: %w", productID, shared.ErrNotFound)
	}
	return r.s.alerts[id], nil
}

func (r *AlertStore) CreateAlert(ctx context.Context, alert alerts.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.openAlert[alert.ProductID]; ok {
		return alerts.ErrOpenAlertExists
	}
	put(ctx, r.s.alerts, alert.ID, alert)
	if alert.Open() {
		put(ctx, r.s.openAlert, alert.ProductID, alert.ID)
	}
	return nil
}

func (r *AlertStore) GetAlert(_ context.Context, id string) (alerts.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	alert, ok := r.s.alerts[id]
	if !ok {
		return alerts.Alert{}, alerts.ErrAlertNotFound
	}
	return alert, nil
}

func (r *AlertStore) SaveAlert(ctx context.Context, alert alerts.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.alerts[alert.ID]; !ok {
		return alerts.ErrAlertNotFound
	}
	put(ctx, r.s.alerts, alert.ID, alert)
	if !alert.Open() && r.s.openAlert[alert.ProductID] == alert.ID {
		remove(ctx, r.s.openAlert, alert.ProductID)
	}
	return nil
}

func (r *AlertStore) ListOpen(context.Context) ([]alerts.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]alerts.Alert, 0, len(r.s.openAlert))
	for _, id := range r.s.openAlert {
		out = append(out, r.s.alerts[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// All returns every alert ever raised, oldest first.
func (r *AlertStore) All() []alerts.Alert {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]alerts.Alert, 0, len(r.s.alerts))
	for _, a := range r.s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *AlertStore) ReorderMark(_ context.Context, productID string) (alerts.ReorderMark, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mark, ok := r.s.marks[productID]
	if !ok {
		return alerts.ReorderMark{}, fmt.Errorf("alerts: no reorder mark for %s: %w", productID, shared.ErrNotFound)
	}
	return mark, nil
}

func (r *AlertStore) SetReorderMark(ctx context.Context, mark alerts.ReorderMark) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	put(ctx, r.s.marks, mark.ProductID, mark)
	return nil
}

func (r *AlertStore) ClearReorderMark(ctx context.Context, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	remove(ctx, r.s.marks, productID)
	return nil
}

// PurchaseRequestStore implements procurement.Store.
type PurchaseRequestStore struct{ s *Store }

func (r *PurchaseRequestStore) InsertRequest(ctx context.Context, pr procurement.PurchaseRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[pr.CrossingKey]; ok {
		return procurement.ErrDuplicateRequest
	}
	put(ctx, r.s.requests, pr.CrossingKey, pr)
	prevOrder := r.s.requestOrder
	r.s.requestOrder = append(append([]string(nil), prevOrder...), pr.CrossingKey)
	record(ctx, func() { r.s.requestOrder = prevOrder })
	return nil
}

// List returns purchase requests in insertion order.
func (r *PurchaseRequestStore) List() []procurement.PurchaseRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]procurement.PurchaseRequest, 0, len(r.s.requestOrder))
	for _, key := range r.s.requestOrder {
		out = append(out, r.s.requests[key])
	}
	return out
}

// AuditStore implements shared.AuditPort.
type AuditStore struct{ s *Store }

func (r *AuditStore) Record(_ context.Context, log shared.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	r.s.audit = append(r.s.audit, log)
	return nil
}

// Entries returns recorded audit logs in order.
func (r *AuditStore) Entries() []shared.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]shared.AuditLog(nil), r.s.audit...)
}

// IdempotencyStore mirrors db.IdempotencyStore.
type IdempotencyStore struct{ s *Store }

func (r *IdempotencyStore) CheckAndInsert(_ context.Context, key, module string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	r.s.keys[key] = module
	return nil
}

func (r *IdempotencyStore) Delete(_ context.Context, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.keys, key)
	return nil
}
