package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists fulfillments and orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fulfillmentColumns = `id, order_id, status, held_from, items, picked_by, packed_by, shipping_label, created_at, updated_at`

func scanFulfillment(row pgx.Row) (Fulfillment, error) {
	var (
		f        Fulfillment
		status   string
		heldFrom *string
		items    []byte
	)
	if err := row.Scan(&f.ID, &f.OrderID, &status, &heldFrom, &items, &f.PickedBy, &f.PackedBy, &f.ShippingLabel, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return Fulfillment{}, err
	}
	f.Status = Status(status)
	if heldFrom != nil {
		f.HeldFrom = Status(*heldFrom)
	}
	if err := json.Unmarshal(items, &f.Items); err != nil {
		return Fulfillment{}, fmt.Errorf("fulfillment: decode items: %w", err)
	}
	return f, nil
}

func nullableStatus(s Status) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// Get locks the row when called inside a transaction.
func (r *Repository) Get(ctx context.Context, id string) (Fulfillment, error) {
	query := `SELECT ` + fulfillmentColumns + ` FROM fulfillments WHERE id=$1`
	if shared.InTx(ctx) {
		query += ` FOR UPDATE`
	}
	f, err := scanFulfillment(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Fulfillment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return f, err
}

func (r *Repository) GetByOrder(ctx context.Context, orderID string) (Fulfillment, error) {
	f, err := scanFulfillment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+fulfillmentColumns+` FROM fulfillments WHERE order_id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Fulfillment{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return f, err
}

func (r *Repository) Insert(ctx context.Context, f Fulfillment) error {
	items, err := json.Marshal(f.Items)
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO fulfillments (`+fulfillmentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (order_id) DO NOTHING`,
		f.ID, f.OrderID, string(f.Status), nullableStatus(f.HeldFrom), items, f.PickedBy, f.PackedBy, f.ShippingLabel, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, f.OrderID)
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, f Fulfillment) error {
	items, err := json.Marshal(f.Items)
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE fulfillments SET status=$2, held_from=$3, items=$4, picked_by=$5, packed_by=$6, shipping_label=$7, updated_at=$8 WHERE id=$1`,
		f.ID, string(f.Status), nullableStatus(f.HeldFrom), items, f.PickedBy, f.PackedBy, f.ShippingLabel, f.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, f.ID)
	}
	return nil
}

func (r *Repository) AppendStep(ctx context.Context, step Step) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO fulfillment_steps (fulfillment_id, status, completed_by, completed_at, notes) VALUES ($1,$2,$3,$4,$5)`,
		step.FulfillmentID, string(step.Status), step.CompletedBy, step.CompletedAt, step.Notes)
	return err
}

func (r *Repository) Steps(ctx context.Context, fulfillmentID string) ([]Step, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT fulfillment_id, status, completed_by, completed_at, notes FROM fulfillment_steps WHERE fulfillment_id=$1 ORDER BY id`, fulfillmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Step
	for rows.Next() {
		var s Step
		var status string
		if err := rows.Scan(&s.FulfillmentID, &status, &s.CompletedBy, &s.CompletedAt, &s.Notes); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// OrderRepository reads orders for packing slips.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository constructs OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Order(ctx context.Context, orderID string) (OrderInfo, error) {
	info := OrderInfo{OrderID: orderID}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT order_number, customer_name, shipping_address FROM orders WHERE id=$1`, orderID).
		Scan(&info.OrderNumber, &info.CustomerName, &info.ShippingAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderInfo{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return info, err
}

// UpsertOrder mirrors an order from the order system.
func (r *OrderRepository) UpsertOrder(ctx context.Context, info OrderInfo) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO orders (id, order_number, customer_name, shipping_address) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET order_number=EXCLUDED.order_number, customer_name=EXCLUDED.customer_name, shipping_address=EXCLUDED.shipping_address`,
		info.OrderID, info.OrderNumber, info.CustomerName, info.ShippingAddress)
	return err
}
