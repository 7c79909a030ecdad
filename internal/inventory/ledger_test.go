package inventory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type memoryStore struct {
	products map[string]Product
	entries  []Transaction
}

func newMemoryStore() *memoryStore {
	return &memoryStore{products: make(map[string]Product)}
}

func (s *memoryStore) add(id string, qty int) {
	s.products[id] = Product{ID: id, SKU: "SKU-" + id, Name: "Product " + id, Quantity: qty}
}

func (s *memoryStore) CurrentStock(_ context.Context, productID string) (int, error) {
	p, ok := s.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.Quantity, nil
}

func (s *memoryStore) AppendTransaction(_ context.Context, tx Transaction) error {
	s.entries = append(s.entries, tx)
	return nil
}

func (s *memoryStore) SetStock(_ context.Context, productID string, quantity int) error {
	p := s.products[productID]
	p.Quantity = quantity
	s.products[productID] = p
	return nil
}

func (s *memoryStore) ProductName(_ context.Context, productID string) (string, error) {
	return s.products[productID].Name, nil
}

func (s *memoryStore) Transactions(_ context.Context, productID string, limit int) ([]Transaction, error) {
	var out []Transaction
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].ProductID == productID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *memoryStore) Products(context.Context) ([]Product, error) {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type nopHandle struct{}

func (nopHandle) Commit(context.Context) error   { return nil }
func (nopHandle) Rollback(context.Context) error { return nil }

type nopDriver struct{}

func (nopDriver) Begin(ctx context.Context) (context.Context, shared.TxHandle, error) {
	return ctx, nopHandle{}, nil
}

type evaluation struct {
	productID string
	stock     int
}

type recordingEvaluator struct {
	calls []evaluation
	fail  map[string]error
}

func (e *recordingEvaluator) Evaluate(_ context.Context, productID string, stock int) (*alerts.Alert, error) {
	e.calls = append(e.calls, evaluation{productID, stock})
	if err := e.fail[productID]; err != nil {
		return nil, err
	}
	if stock <= 10 {
		return &alerts.Alert{ProductID: productID, CurrentStock: stock}, nil
	}
	return nil, nil
}

func newTestLedger(store Store, evaluator AlertEvaluator, cfg LedgerConfig) *Ledger {
	return NewLedger(store, shared.NewTransactor(nopDriver{}), shared.NewKeyedMutex(), evaluator, cfg)
}

func TestPostRecordsBeforeAndAfter(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 12)
	evaluator := &recordingEvaluator{}
	ledger := newTestLedger(store, evaluator, LedgerConfig{})

	tx, err := ledger.Post(context.Background(), PostInput{ProductID: "P-1", Delta: -5, Reason: ReasonSale, ActorID: "u-1"})
	require.NoError(t, err)
	require.Equal(t, 12, tx.PreviousStock)
	require.Equal(t, 7, tx.NewStock)
	require.Equal(t, "u-1", tx.CreatedBy)
	require.NotEmpty(t, tx.ID)
	require.Equal(t, 7, store.products["P-1"].Quantity)
	require.Equal(t, []evaluation{{"P-1", 7}}, evaluator.calls)
}

func TestPostBatchAppliesInOrderAndEvaluatesFinalStock(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 10)
	store.add("P-2", 40)
	evaluator := &recordingEvaluator{}
	ledger := newTestLedger(store, evaluator, LedgerConfig{})

	posted, err := ledger.PostBatch(context.Background(), []PostInput{
		{ProductID: "P-1", Delta: 5, Reason: ReasonRestock},
		{ProductID: "P-2", Delta: -1, Reason: ReasonDamage},
		{ProductID: "P-1", Delta: -12, Reason: ReasonSale},
	})
	require.NoError(t, err)
	require.Len(t, posted, 3)
	require.Equal(t, 15, posted[0].NewStock)
	require.Equal(t, 15, posted[2].PreviousStock)
	require.Equal(t, 3, posted[2].NewStock)
	require.Equal(t, 3, store.products["P-1"].Quantity)
	require.Equal(t, 39, store.products["P-2"].Quantity)
	require.Equal(t, []evaluation{{"P-1", 3}, {"P-2", 39}}, evaluator.calls)
}

func TestNegativeStockGuard(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 2)
	ledger := newTestLedger(store, nil, LedgerConfig{})

	_, err := ledger.Post(context.Background(), PostInput{ProductID: "P-1", Delta: -3, Reason: ReasonSale})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrNegativeStock)
	require.Empty(t, store.entries)
	require.Equal(t, 2, store.products["P-1"].Quantity)

	tx, err := ledger.Post(context.Background(), PostInput{ProductID: "P-1", Delta: -3, Reason: ReasonSale, AllowBackorder: true})
	require.NoError(t, err)
	require.Equal(t, -1, tx.NewStock)
}

func TestNegativeStockAllowedByConfig(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 0)
	ledger := newTestLedger(store, nil, LedgerConfig{AllowNegativeStock: true})

	tx, err := ledger.Post(context.Background(), PostInput{ProductID: "P-1", Delta: -4, Reason: ReasonAdjustment})
	require.NoError(t, err)
	require.Equal(t, -4, tx.NewStock)
}

func TestPostValidation(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 5)
	ledger := newTestLedger(store, nil, LedgerConfig{})
	ctx := context.Background()

	_, err := ledger.PostBatch(ctx, nil)
	require.ErrorIs(t, err, shared.ErrEmptyBatch)
	_, err = ledger.Post(ctx, PostInput{ProductID: "P-1", Delta: 0, Reason: ReasonSale})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = ledger.Post(ctx, PostInput{ProductID: "P-1", Delta: 1, Reason: "GIFT"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.NotErrorIs(t, err, ErrInvalidQuantity)
	_, err = ledger.Post(ctx, PostInput{Delta: 1, Reason: ReasonRestock})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = ledger.Post(ctx, PostInput{ProductID: "P-1", Delta: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = ledger.Post(ctx, PostInput{ProductID: "P-9", Delta: 1, Reason: ReasonRestock})
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Empty(t, store.entries)
}

func TestPostFailsWhenEvaluationFails(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 5)
	boom := errors.New("alerts down")
	ledger := newTestLedger(store, &recordingEvaluator{fail: map[string]error{"P-1": boom}}, LedgerConfig{})

	_, err := ledger.Post(context.Background(), PostInput{ProductID: "P-1", Delta: -1, Reason: ReasonSale})
	require.ErrorIs(t, err, boom)
}

func TestReevaluateAllContinuesPastFailures(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 3)
	store.add("P-2", 50)
	store.add("P-3", 1)
	boom := errors.New("boom")
	evaluator := &recordingEvaluator{fail: map[string]error{"P-1": boom}}
	ledger := newTestLedger(store, evaluator, LedgerConfig{})

	created, err := ledger.ReevaluateAll(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, created)
	require.Len(t, evaluator.calls, 3)
}

func TestHistoryNewestFirst(t *testing.T) {
	store := newMemoryStore()
	store.add("P-1", 10)
	ledger := newTestLedger(store, nil, LedgerConfig{})
	ctx := context.Background()
	for _, delta := range []int{1, 2, 3} {
		_, err := ledger.Post(ctx, PostInput{ProductID: "P-1", Delta: delta, Reason: ReasonRestock})
		require.NoError(t, err)
	}

	history, err := ledger.History(ctx, "P-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 3, history[0].QuantityDelta)
	require.Equal(t, 2, history[1].QuantityDelta)
}
