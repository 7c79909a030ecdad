package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CurrentStock locks the stock row when called inside a transaction.
func (r *Repository) CurrentStock(ctx context.Context, productID string) (int, error) {
	query := `SELECT quantity FROM inventory_stock WHERE product_id=$1`
	if shared.InTx(ctx) {
		query += ` FOR UPDATE`
	}
	var qty int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return qty, err
}

func (r *Repository) AppendTransaction(ctx context.Context, tx Transaction) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO inventory_transactions (id, product_id, quantity_delta, previous_stock, new_stock, reason, notes, reference, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tx.ID, tx.ProductID, tx.QuantityDelta, tx.PreviousStock, tx.NewStock, string(tx.Reason), tx.Notes, tx.Reference, tx.CreatedBy, tx.CreatedAt)
	return err
}

func (r *Repository) SetStock(ctx context.Context, productID string, quantity int) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_stock SET quantity=$2, updated_at=NOW() WHERE product_id=$1`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) ProductName(ctx context.Context, productID string) (string, error) {
	var name string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT product_name FROM inventory_stock WHERE product_id=$1`, productID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrProductNotFound
	}
	return name, err
}

func (r *Repository) Transactions(ctx context.Context, productID string, limit int) ([]Transaction, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, product_id, quantity_delta, previous_stock, new_stock, reason, notes, reference, created_by, created_at
FROM inventory_transactions WHERE product_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var reason string
		if err := rows.Scan(&tx.ID, &tx.ProductID, &tx.QuantityDelta, &tx.PreviousStock, &tx.NewStock, &reason, &tx.Notes, &tx.Reference, &tx.CreatedBy, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Reason = Reason(reason)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) Products(ctx context.Context) ([]Product, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT product_id, sku, product_name, quantity FROM inventory_stock ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RegisterProduct creates a product row with zero stock, or refreshes its
// catalogue fields. Stock only changes through the ledger.
func (r *Repository) RegisterProduct(ctx context.Context, p Product) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO inventory_stock (product_id, sku, product_name, quantity)
VALUES ($1,$2,$3,0)
ON CONFLICT (product_id) DO UPDATE SET sku=EXCLUDED.sku, product_name=EXCLUDED.product_name, updated_at=NOW()`, p.ID, p.SKU, p.Name)
	return err
}
