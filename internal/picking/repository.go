package picking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
)

// Repository persists pick lists in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (PickList, error) {
	conn := db.Conn(ctx, r.pool)
	var list PickList
	var status string
	err := conn.QueryRow(ctx, `SELECT id, fulfillment_ids, status, created_at, completed_at FROM pick_lists WHERE id=$1`, id).
		Scan(&list.ID, &list.FulfillmentIDs, &status, &list.CreatedAt, &list.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PickList{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return PickList{}, err
	}
	list.Status = Status(status)

	rows, err := conn.Query(ctx, `SELECT product_id, product_name, sku, location, total_quantity, picked_quantity
FROM pick_list_items WHERE pick_list_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return PickList{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.SKU, &item.Location, &item.TotalQuantity, &item.PickedQuantity); err != nil {
			return PickList{}, err
		}
		list.Items = append(list.Items, item)
	}
	return list, rows.Err()
}

func (r *Repository) Save(ctx context.Context, list PickList) error {
	conn := db.Conn(ctx, r.pool)
	_, err := conn.Exec(ctx, `INSERT INTO pick_lists (id, fulfillment_ids, status, created_at, completed_at) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, completed_at=EXCLUDED.completed_at`,
		list.ID, list.FulfillmentIDs, string(list.Status), list.CreatedAt, list.CompletedAt)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i, item := range list.Items {
		batch.Queue(`INSERT INTO pick_list_items (pick_list_id, product_id, product_name, sku, location, total_quantity, picked_quantity, line_no)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (pick_list_id, product_id) DO UPDATE SET picked_quantity=EXCLUDED.picked_quantity`,
			list.ID, item.ProductID, item.ProductName, item.SKU, item.Location, item.TotalQuantity, item.PickedQuantity, i)
	}
	return sendBatch(ctx, conn, batch)
}

func (r *Repository) SetPicked(ctx context.Context, pickListID, productID string, picked int, status Status) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `UPDATE pick_list_items SET picked_quantity=$3 WHERE pick_list_id=$1 AND product_id=$2`, pickListID, productID, picked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	if status != StatusInProgress {
		return nil
	}
	_, err = conn.Exec(ctx, `UPDATE pick_lists SET status=$2 WHERE id=$1 AND status=$3`, pickListID, string(StatusInProgress), string(StatusPending))
	return err
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, conn db.DBTX, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	sender, ok := conn.(batchSender)
	if !ok {
		return errors.New("picking: connection does not support batches")
	}
	results := sender.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
