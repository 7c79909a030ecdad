// Package memstore keeps every repository in process memory. It backs the
// tests and the single-binary demo mode. Writes made inside a unit of work
// are journaled and undone on rollback; isolation between concurrent units
// comes from the keyed locks the services take, not from the store.
package memstore

import (
	"context"
	"sync"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/procurement"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store owns all in-memory tables.
type Store struct {
	mu sync.Mutex

	products     map[string]inventory.Product
	transactions map[string][]inventory.Transaction

	fulfillments map[string]fulfillment.Fulfillment
	byOrder      map[string]string
	steps        map[string][]fulfillment.Step
	orders       map[string]fulfillment.OrderInfo

	pickLists map[string]picking.PickList

	alerts    map[string]alerts.Alert
	openAlert map[string]string
	marks     map[string]alerts.ReorderMark

	requests     map[string]procurement.PurchaseRequest
	requestOrder []string

	audit []shared.AuditLog
	keys  map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:     make(map[string]inventory.Product),
		transactions: make(map[string][]inventory.Transaction),
		fulfillments: make(map[string]fulfillment.Fulfillment),
		byOrder:      make(map[string]string),
		steps:        make(map[string][]fulfillment.Step),
		orders:       make(map[string]fulfillment.OrderInfo),
		pickLists:    make(map[string]picking.PickList),
		alerts:       make(map[string]alerts.Alert),
		openAlert:    make(map[string]string),
		marks:        make(map[string]alerts.ReorderMark),
		requests:     make(map[string]procurement.PurchaseRequest),
		keys:         make(map[string]string),
	}
}

type journalKey struct{}

type journal struct {
	store *Store
	mu    sync.Mutex
	undo  []func()
	done  bool
}

// Begin implements shared.TxDriver.
func (s *Store) Begin(ctx context.Context) (context.Context, shared.TxHandle, error) {
	j := &journal{store: s}
	return context.WithValue(ctx, journalKey{}, j), j, nil
}

func (j *journal) Commit(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = nil
	j.done = true
	return nil
}

func (j *journal) Rollback(context.Context) error {
	j.mu.Lock()
	if j.done {
		j.mu.Unlock()
		return nil
	}
	j.done = true
	undo := j.undo
	j.undo = nil
	j.mu.Unlock()

	j.store.mu.Lock()
	defer j.store.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

// record registers undo for the journal carried by ctx. Callers hold s.mu.
func record(ctx context.Context, undo func()) {
	j, _ := ctx.Value(journalKey{}).(*journal)
	if j == nil {
		return
	}
	j.mu.Lock()
	if !j.done {
		j.undo = append(j.undo, undo)
	}
	j.mu.Unlock()
}

// put writes m[key]=value and journals the previous state.
func put[K comparable, V any](ctx context.Context, m map[K]V, key K, value V) {
	prev, existed := m[key]
	m[key] = value
	record(ctx, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// remove deletes m[key] and journals the previous state.
func remove[K comparable, V any](ctx context.Context, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	delete(m, key)
	record(ctx, func() { m[key] = prev })
}

// Inventory returns the stock ledger tables.
func (s *Store) Inventory() *InventoryStore { return &InventoryStore{s: s} }

// Fulfillments returns the fulfillment tables.
func (s *Store) Fulfillments() *FulfillmentStore { return &FulfillmentStore{s: s} }

// Orders returns the order lookup used by packing slips.
func (s *Store) Orders() *OrderStore { return &OrderStore{s: s} }

// PickLists returns the pick list tables.
func (s *Store) PickLists() *PickListStore { return &PickListStore{s: s} }

// Alerts returns the alert and reorder-mark tables.
func (s *Store) Alerts() *AlertStore { return &AlertStore{s: s} }

// PurchaseRequests returns the procurement table.
func (s *Store) PurchaseRequests() *PurchaseRequestStore { return &PurchaseRequestStore{s: s} }

// Audit returns the audit sink.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// Idempotency returns the processed-key table.
func (s *Store) Idempotency() *IdempotencyStore { return &IdempotencyStore{s: s} }
