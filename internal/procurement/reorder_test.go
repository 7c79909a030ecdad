package procurement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/memstore"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/procurement"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type failingStore struct{ err error }

func (f failingStore) InsertRequest(context.Context, procurement.PurchaseRequest) error {
	return f.err
}

func request(stock int) alerts.ReorderRequest {
	return alerts.ReorderRequest{
		ProductID:   "P-1",
		CrossingKey: "reorder:P-1:1",
		Stock:       stock,
		RequestedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRequestReorderDraftsOncePerCrossing(t *testing.T) {
	store := memstore.New()
	audit := store.Audit()
	r := procurement.NewReorderer(store.PurchaseRequests(), procurement.ReordererConfig{Quantity: 40, Audit: audit})

	require.NoError(t, r.RequestReorder(context.Background(), request(3)))
	require.NoError(t, r.RequestReorder(context.Background(), request(3)))

	prs := store.PurchaseRequests().List()
	require.Len(t, prs, 1)
	require.Equal(t, procurement.PRStatusDraft, prs[0].Status)
	require.Equal(t, 40, prs[0].Quantity)
	require.Equal(t, "system:auto-reorder", prs[0].RequestedBy)
	require.Contains(t, prs[0].Number, "PR-")
	require.Len(t, audit.Entries(), 1)
	require.Equal(t, "PR_CREATE", audit.Entries()[0].Action)
}

func TestRequestReorderCoversBackorders(t *testing.T) {
	store := memstore.New()
	r := procurement.NewReorderer(store.PurchaseRequests(), procurement.ReordererConfig{})

	require.NoError(t, r.RequestReorder(context.Background(), request(-7)))
	prs := store.PurchaseRequests().List()
	require.Len(t, prs, 1)
	require.Equal(t, 57, prs[0].Quantity)

	zero := request(0)
	zero.CrossingKey = "reorder:P-1:2"
	require.NoError(t, r.RequestReorder(context.Background(), zero))
	prs = store.PurchaseRequests().List()
	require.Len(t, prs, 2)
	for _, pr := range prs {
		if pr.CrossingKey == zero.CrossingKey {
			require.Equal(t, 50, pr.Quantity)
		}
	}
}

func TestRequestReorderValidation(t *testing.T) {
	r := procurement.NewReorderer(failingStore{}, procurement.ReordererConfig{})

	err := r.RequestReorder(context.Background(), alerts.ReorderRequest{ProductID: "P-1"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	err = r.RequestReorder(context.Background(), alerts.ReorderRequest{CrossingKey: "k"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRequestReorderPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	r := procurement.NewReorderer(failingStore{err: boom}, procurement.ReordererConfig{})

	require.ErrorIs(t, r.RequestReorder(context.Background(), request(0)), boom)
}
