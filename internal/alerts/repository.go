package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Repository persists alerts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const alertColumns = `id, product_id, current_stock, threshold, status, created_at, acknowledged_at, resolved_at`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	var status string
	err := row.Scan(&a.ID, &a.ProductID, &a.CurrentStock, &a.Threshold, &status, &a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt)
	a.Status = StockLevel(status)
	return a, err
}

func (r *Repository) OpenAlert(ctx context.Context, productID string) (Alert, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertColumns+` FROM inventory_alerts WHERE product_id=$1 AND resolved_at IS NULL`, productID)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, fmt.Errorf("alerts: no open alert for %s: %w", productID, shared.ErrNotFound)
	}
	return alert, err
}

// CreateAlert relies on the partial unique index over open alerts. ON
// CONFLICT keeps the surrounding transaction usable when the insert loses.
func (r *Repository) CreateAlert(ctx context.Context, alert Alert) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO inventory_alerts (id, product_id, current_stock, threshold, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (product_id) WHERE resolved_at IS NULL DO NOTHING`,
		alert.ID, alert.ProductID, alert.CurrentStock, alert.Threshold, string(alert.Status), alert.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOpenAlertExists
	}
	return nil
}

func (r *Repository) GetAlert(ctx context.Context, id string) (Alert, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertColumns+` FROM inventory_alerts WHERE id=$1`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrAlertNotFound
	}
	return alert, err
}

func (r *Repository) SaveAlert(ctx context.Context, alert Alert) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_alerts SET acknowledged_at=$2, resolved_at=$3 WHERE id=$1`,
		alert.ID, alert.AcknowledgedAt, alert.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *Repository) ListOpen(ctx context.Context) ([]Alert, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+alertColumns+` FROM inventory_alerts WHERE resolved_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (r *Repository) ReorderMark(ctx context.Context, productID string) (ReorderMark, error) {
	var m ReorderMark
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT product_id, crossing_id, stock_at_request, requested_at FROM inventory_reorder_marks WHERE product_id=$1`, productID).
		Scan(&m.ProductID, &m.CrossingID, &m.StockAtRequest, &m.RequestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReorderMark{}, fmt.Errorf("alerts: no reorder mark for %s: %w", productID, shared.ErrNotFound)
	}
	return m, err
}

func (r *Repository) SetReorderMark(ctx context.Context, mark ReorderMark) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO inventory_reorder_marks (product_id, crossing_id, stock_at_request, requested_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (product_id) DO UPDATE SET crossing_id=EXCLUDED.crossing_id, stock_at_request=EXCLUDED.stock_at_request, requested_at=EXCLUDED.requested_at`,
		mark.ProductID, mark.CrossingID, mark.StockAtRequest, mark.RequestedAt)
	return err
}

func (r *Repository) ClearReorderMark(ctx context.Context, productID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM inventory_reorder_marks WHERE product_id=$1`, productID)
	return err
}
