package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/memstore"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/procurement"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type recordingNotifier struct {
	mu       sync.Mutex
	admins   []alerts.Alert
	supplier []alerts.Alert
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, alert alerts.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, alert)
	return nil
}

func (n *recordingNotifier) NotifySupplier(_ context.Context, alert alerts.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supplier = append(n.supplier, alert)
	return nil
}

func (n *recordingNotifier) adminCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.admins)
}

// tickingClock advances one second per reading so ordering by time is stable.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	store    *memstore.Store
	eng      *Engine
	notifier *recordingNotifier
}

func newHarness(t *testing.T, settings alerts.Settings) *harness {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	reorderer := procurement.NewReorderer(store.PurchaseRequests(), procurement.ReordererConfig{Quantity: 50})
	clock := &tickingClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	eng, err := Build(MemoryStores(store), Options{
		Settings:   settings,
		Now:        clock.Now,
		Dispatcher: alerts.InlineDispatcher{Notifier: notifier, Reorder: reorderer},
	})
	require.NoError(t, err)
	return &harness{store: store, eng: eng, notifier: notifier}
}

func (h *harness) createFulfillment(t *testing.T, orderID string, items ...fulfillment.ItemInput) fulfillment.Fulfillment {
	t.Helper()
	f, err := h.eng.Fulfillments.Create(context.Background(), fulfillment.CreateInput{OrderID: orderID, Items: items, ActorID: "clerk"})
	require.NoError(t, err)
	return f
}

func (h *harness) advance(t *testing.T, id string, targets ...fulfillment.Status) fulfillment.Fulfillment {
	t.Helper()
	var f fulfillment.Fulfillment
	for _, target := range targets {
		var err error
		f, err = h.eng.Fulfillments.Transition(context.Background(), fulfillment.TransitionInput{FulfillmentID: id, Target: target, ActorID: "clerk"})
		require.NoError(t, err, "transition to %s", target)
	}
	return f
}

func (h *harness) stock(t *testing.T, productID string) int {
	t.Helper()
	qty, err := h.eng.Ledger.StockOf(context.Background(), productID)
	require.NoError(t, err)
	return qty
}

func TestShipmentDecrementsStockAndAlertsOnce(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Blue Widget", 12)
	ctx := context.Background()

	f := h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 5})
	list, err := h.eng.Picking.CreatePickList(ctx, []string{f.ID}, "picker")
	require.NoError(t, err)
	require.Equal(t, "Blue Widget", list.Items[0].ProductName)

	_, err = h.eng.Picking.RecordPick(ctx, list.ID, "P-1", 5)
	require.NoError(t, err)
	_, err = h.eng.Picking.Complete(ctx, list.ID, "picker")
	require.NoError(t, err)

	shipped := h.advance(t, f.ID, fulfillment.StatusPacked, fulfillment.StatusReadyForShipping, fulfillment.StatusShipped)
	require.Equal(t, fulfillment.StatusShipped, shipped.Status)
	require.Equal(t, 7, h.stock(t, "P-1"))

	history := h.store.Inventory().AllTransactions("P-1")
	require.Len(t, history, 1)
	require.Equal(t, -5, history[0].QuantityDelta)
	require.Equal(t, 12, history[0].PreviousStock)
	require.Equal(t, 7, history[0].NewStock)
	require.Equal(t, inventory.ReasonSale, history[0].Reason)
	require.Equal(t, "fulfillment:"+f.ID, history[0].Reference)

	open, err := h.eng.Alerts.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, alerts.LevelLowStock, open[0].Status)
	require.Equal(t, 7, open[0].CurrentStock)
	require.Equal(t, 10, open[0].Threshold)
	require.Equal(t, 1, h.notifier.adminCount())

	steps, err := h.eng.Fulfillments.Steps(ctx, f.ID)
	require.NoError(t, err)
	var statuses []fulfillment.Status
	for _, s := range steps {
		statuses = append(statuses, s.Status)
	}
	require.Equal(t, []fulfillment.Status{
		fulfillment.StatusPending,
		fulfillment.StatusProcessing,
		fulfillment.StatusPicked,
		fulfillment.StatusPacked,
		fulfillment.StatusReadyForShipping,
		fulfillment.StatusShipped,
	}, statuses)
}

func TestRejectedShipmentLeavesNoTrace(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 20)
	h.store.Inventory().AddProduct("P-2", "SKU-2", "Gadget", 2)

	f := h.createFulfillment(t, "O-1",
		fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 15},
		fulfillment.ItemInput{ProductID: "P-2", SKU: "SKU-2", Quantity: 5},
	)
	h.advance(t, f.ID, fulfillment.StatusProcessing, fulfillment.StatusPicked, fulfillment.StatusPacked, fulfillment.StatusReadyForShipping)

	_, err := h.eng.Fulfillments.Transition(context.Background(), fulfillment.TransitionInput{
		FulfillmentID: f.ID, Target: fulfillment.StatusShipped, ActorID: "clerk",
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrNegativeStock)

	require.Equal(t, 20, h.stock(t, "P-1"))
	require.Equal(t, 2, h.stock(t, "P-2"))
	require.Empty(t, h.store.Inventory().AllTransactions("P-1"))
	require.Empty(t, h.store.Inventory().AllTransactions("P-2"))
	require.Empty(t, h.store.Alerts().All())
	require.Zero(t, h.notifier.adminCount())

	got, err := h.eng.Fulfillments.Get(context.Background(), f.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReadyForShipping, got.Status)
	steps, err := h.eng.Fulfillments.Steps(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, steps, 5)
}

func TestConcurrentPostsNeverLoseUpdates(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.eng.Ledger.Post(ctx, inventory.PostInput{ProductID: "P-1", Delta: 5, Reason: inventory.ReasonRestock})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.eng.Ledger.Post(ctx, inventory.PostInput{ProductID: "P-1", Delta: -3, Reason: inventory.ReasonSale})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 140, h.stock(t, "P-1"))
	history := h.store.Inventory().AllTransactions("P-1")
	require.Len(t, history, 40)
	require.Equal(t, 100, history[0].PreviousStock)
	for i, tx := range history {
		require.Equal(t, tx.PreviousStock+tx.QuantityDelta, tx.NewStock)
		if i > 0 {
			require.Equal(t, history[i-1].NewStock, tx.PreviousStock)
		}
	}
	require.Equal(t, 140, history[len(history)-1].NewStock)
}

func TestReorderFiresOncePerCrossing(t *testing.T) {
	settings := alerts.DefaultSettings()
	settings.EnableAutoReorder = true
	settings.AutoReorderThreshold = 5
	h := newHarness(t, settings)
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 10)
	ctx := context.Background()

	post := func(delta int, reason inventory.Reason) {
		_, err := h.eng.Ledger.Post(ctx, inventory.PostInput{ProductID: "P-1", Delta: delta, Reason: reason})
		require.NoError(t, err)
	}

	post(-6, inventory.ReasonSale)
	post(-1, inventory.ReasonSale)
	require.Len(t, h.store.PurchaseRequests().List(), 1)

	post(10, inventory.ReasonRestock)
	post(-9, inventory.ReasonSale)

	requests := h.store.PurchaseRequests().List()
	require.Len(t, requests, 2)
	require.NotEqual(t, requests[0].CrossingKey, requests[1].CrossingKey)
	for _, pr := range requests {
		require.Equal(t, procurement.PRStatusDraft, pr.Status)
		require.Equal(t, 50, pr.Quantity)
		require.Equal(t, "P-1", pr.ProductID)
	}
}

func TestAlertsStayOpenUntilResolved(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 12)
	ctx := context.Background()

	post := func(delta int, reason inventory.Reason) {
		_, err := h.eng.Ledger.Post(ctx, inventory.PostInput{ProductID: "P-1", Delta: delta, Reason: reason})
		require.NoError(t, err)
	}

	post(-5, inventory.ReasonSale)
	post(20, inventory.ReasonRestock)
	open, err := h.eng.Alerts.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	post(-20, inventory.ReasonSale)
	post(-7, inventory.ReasonSale)
	require.Len(t, h.store.Alerts().All(), 1)
	require.Equal(t, 1, h.notifier.adminCount())

	_, err = h.eng.Alerts.Resolve(ctx, open[0].ID)
	require.NoError(t, err)
	_, err = h.eng.Alerts.Resolve(ctx, open[0].ID)
	require.ErrorIs(t, err, alerts.ErrAlertResolved)

	post(1, inventory.ReasonReturn)
	all := h.store.Alerts().All()
	require.Len(t, all, 2)
	require.Equal(t, alerts.LevelLowStock, all[1].Status)
	require.Equal(t, 1, all[1].CurrentStock)
	require.Equal(t, 2, h.notifier.adminCount())
}

func TestCancelledContextAbortsBeforeCommit(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 12)

	ctx, cancel := context.WithCancel(context.Background())
	err := h.eng.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := h.eng.Ledger.Post(ctx, inventory.PostInput{ProductID: "P-1", Delta: -5, Reason: inventory.ReasonSale}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 12, h.stock(t, "P-1"))
	require.Empty(t, h.store.Inventory().AllTransactions("P-1"))
	require.Empty(t, h.store.Alerts().All())
	require.Zero(t, h.notifier.adminCount())

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = h.eng.Ledger.Post(expired, inventory.PostInput{ProductID: "P-1", Delta: -1, Reason: inventory.ReasonSale})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 12, h.stock(t, "P-1"))
}

func TestPickListCompletionRequiresEveryLine(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 50)
	h.store.Inventory().AddProduct("P-2", "SKU-2", "Gadget", 50)
	ctx := context.Background()

	f1 := h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 2})
	f2 := h.createFulfillment(t, "O-2",
		fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 3},
		fulfillment.ItemInput{ProductID: "P-2", SKU: "SKU-2", Quantity: 4},
	)
	list, err := h.eng.Picking.CreatePickList(ctx, []string{f2.ID, f1.ID, f1.ID}, "picker")
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	require.Equal(t, 5, list.Items[0].TotalQuantity)
	require.Equal(t, 4, list.Items[1].TotalQuantity)

	_, err = h.eng.Picking.CreatePickList(ctx, []string{f1.ID}, "picker")
	require.ErrorIs(t, err, picking.ErrEmptyBatch)

	var wg sync.WaitGroup
	for _, pick := range []struct {
		product string
		qty     int
	}{{"P-1", 99}, {"P-2", 3}} {
		wg.Add(1)
		go func(product string, qty int) {
			defer wg.Done()
			_, err := h.eng.Picking.RecordPick(ctx, list.ID, product, qty)
			assert.NoError(t, err)
		}(pick.product, pick.qty)
	}
	wg.Wait()

	got, err := h.eng.Picking.Get(ctx, list.ID)
	require.NoError(t, err)
	require.Equal(t, picking.StatusInProgress, got.Status)
	require.Equal(t, 5, got.Items[0].PickedQuantity)
	require.Equal(t, 3, got.Items[1].PickedQuantity)

	_, err = h.eng.Picking.Complete(ctx, list.ID, "picker")
	require.ErrorIs(t, err, picking.ErrIncompletePick)
	for _, id := range []string{f1.ID, f2.ID} {
		f, err := h.eng.Fulfillments.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, fulfillment.StatusProcessing, f.Status)
	}

	_, err = h.eng.Picking.RecordPick(ctx, list.ID, "P-2", 4)
	require.NoError(t, err)
	done, err := h.eng.Picking.Complete(ctx, list.ID, "picker")
	require.NoError(t, err)
	require.Equal(t, picking.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	for _, id := range []string{f1.ID, f2.ID} {
		f, err := h.eng.Fulfillments.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, fulfillment.StatusPicked, f.Status)
		require.NotNil(t, f.PickedBy)
	}

	_, err = h.eng.Picking.RecordPick(ctx, list.ID, "P-2", 0)
	require.ErrorIs(t, err, picking.ErrPickListClosed)
}

func TestPackingSlipForShippedOrder(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Blue Widget", 40)
	h.store.Orders().AddOrder(fulfillment.OrderInfo{OrderID: "O-1", OrderNumber: "SO-1001", CustomerName: "Ana", ShippingAddress: "Jl. Merdeka 1"})

	f := h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 3})
	slip, err := h.eng.Slips.Generate(context.Background(), f.ID)
	require.NoError(t, err)
	require.Equal(t, "SO-1001", slip.OrderNumber)
	require.Equal(t, "Blue Widget", slip.Items[0].ProductName)

	var buf bytes.Buffer
	require.NoError(t, slip.Render(&buf, language.English))
	require.Contains(t, buf.String(), "SO-1001")
	require.Contains(t, buf.String(), "1 items, 3 units")
}

func TestDuplicateOrderRejected(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 1})
	_, err := h.eng.Fulfillments.Create(context.Background(), fulfillment.CreateInput{
		OrderID: "O-1",
		Items:   []fulfillment.ItemInput{{ProductID: "P-1", SKU: "SKU-1", Quantity: 1}},
	})
	require.ErrorIs(t, err, fulfillment.ErrDuplicateOrder)
	require.True(t, errors.Is(err, shared.ErrDuplicate))
}

func TestConcurrentPicksOnOneLineStayWithinBounds(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-1", "SKU-1", "Widget", 50)
	ctx := context.Background()

	f := h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-1", SKU: "SKU-1", Quantity: 6})
	list, err := h.eng.Picking.CreatePickList(ctx, []string{f.ID}, "picker")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := h.eng.Picking.RecordPick(ctx, list.ID, "P-1", qty)
			assert.NoError(t, err)
		}(6 + i%3)
	}
	wg.Wait()

	got, err := h.eng.Picking.Get(ctx, list.ID)
	require.NoError(t, err)
	require.Equal(t, picking.StatusInProgress, got.Status)
	require.Equal(t, 6, got.Items[0].PickedQuantity)
}

func TestConcurrentPicksOnDifferentLines(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	products := []string{"P-A", "P-B", "P-C", "P-D"}
	items := make([]fulfillment.ItemInput, 0, len(products))
	for _, id := range products {
		h.store.Inventory().AddProduct(id, "SKU-"+id, "Item "+id, 50)
		items = append(items, fulfillment.ItemInput{ProductID: id, SKU: "SKU-" + id, Quantity: 5})
	}
	ctx := context.Background()

	f := h.createFulfillment(t, "O-1", items...)
	list, err := h.eng.Picking.CreatePickList(ctx, []string{f.ID}, "picker")
	require.NoError(t, err)
	require.Len(t, list.Items, len(products))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(product string) {
			defer wg.Done()
			_, err := h.eng.Picking.RecordPick(ctx, list.ID, product, 5)
			assert.NoError(t, err)
		}(products[i%len(products)])
	}
	wg.Wait()

	got, err := h.eng.Picking.Get(ctx, list.ID)
	require.NoError(t, err)
	require.Equal(t, picking.StatusInProgress, got.Status)
	for _, line := range got.Items {
		require.Equal(t, 5, line.PickedQuantity, line.ProductID)
	}
	done, err := h.eng.Picking.Complete(ctx, list.ID, "picker")
	require.NoError(t, err)
	require.Equal(t, picking.StatusCompleted, done.Status)
}

func TestRacingShipTransitionsPostStockOnce(t *testing.T) {
	h := newHarness(t, alerts.DefaultSettings())
	h.store.Inventory().AddProduct("P-A", "SKU-A", "Widget", 100)
	ctx := context.Background()

	f := h.createFulfillment(t, "O-1", fulfillment.ItemInput{ProductID: "P-A", SKU: "SKU-A", Quantity: 5})
	h.advance(t, f.ID, fulfillment.StatusProcessing, fulfillment.StatusPicked, fulfillment.StatusPacked, fulfillment.StatusReadyForShipping)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		invalid int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.eng.Fulfillments.Transition(ctx, fulfillment.TransitionInput{FulfillmentID: f.ID, Target: fulfillment.StatusShipped, ActorID: "shipper"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, shared.ErrInvalidTransition):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, 9, invalid)
	require.Equal(t, 95, h.stock(t, "P-A"))
	require.Len(t, h.store.Inventory().AllTransactions("P-A"), 1)

	steps, err := h.eng.Fulfillments.Steps(ctx, f.ID)
	require.NoError(t, err)
	shipped := 0
	for _, s := range steps {
		if s.Status == fulfillment.StatusShipped {
			shipped++
		}
	}
	require.Equal(t, 1, shipped)
}
