package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store persists purchase requests. InsertRequest returns
// ErrDuplicateRequest when the crossing key was already used.
type Store interface {
	InsertRequest(ctx context.Context, pr PurchaseRequest) error
}

// ReordererConfig groups reorder settings.
type ReordererConfig struct {
	Quantity int
	Audit    shared.AuditPort
	Logger   *slog.Logger
	Now      func() time.Time
}

// Reorderer turns auto-reorder crossings into DRAFT purchase requests.
type Reorderer struct {
	store  Store
	qty    int
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewReorderer builds Reorderer.
func NewReorderer(store Store, cfg ReordererConfig) *Reorderer {
	r := &Reorderer{store: store, qty: cfg.Quantity, audit: cfg.Audit, logger: cfg.Logger, now: cfg.Now}
	if r.qty <= 0 {
		r.qty = 50
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// RequestReorder implements alerts.ReorderTrigger. A repeated crossing key
// is a no-op, so redelivered tasks never raise a second request.
func (r *Reorderer) RequestReorder(ctx context.Context, req alerts.ReorderRequest) error {
	if req.ProductID == "" || req.CrossingKey == "" {
		return fmt.Errorf("procurement: product and crossing key required: %w", shared.ErrInvalidInput)
	}
	qty := r.qty
	// Backordered units are owed on top of the replenishment quantity.
	if req.Stock < 0 {
		qty += -req.Stock
	}
	pr := PurchaseRequest{
		ID:          uuid.NewString(),
		Number:      generateNumber("PR"),
		ProductID:   req.ProductID,
		Quantity:    qty,
		Status:      PRStatusDraft,
		CrossingKey: req.CrossingKey,
		Note:        fmt.Sprintf("auto-reorder: stock %d at %s", req.Stock, req.RequestedAt.Format(time.RFC3339)),
		RequestedBy: "system:auto-reorder",
		CreatedAt:   r.now(),
	}
	if err := r.store.InsertRequest(ctx, pr); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			r.logger.Debug("reorder already requested", slog.String("crossing_key", req.CrossingKey))
			return nil
		}
		return err
	}
	r.logger.Info("purchase request drafted",
		slog.String("number", pr.Number),
		slog.String("product_id", pr.ProductID),
		slog.Int("quantity", pr.Quantity))
	if r.audit != nil {
		_ = r.audit.Record(ctx, shared.AuditLog{
			ActorID:  pr.RequestedBy,
			Action:   "PR_CREATE",
			Entity:   "purchase_request",
			EntityID: pr.ID,
			Meta:     map[string]any{"number": pr.Number, "crossing_key": pr.CrossingKey},
			At:       pr.CreatedAt,
		})
	}
	return nil
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// Repository persists purchase requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertRequest(ctx context.Context, pr PurchaseRequest) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO purchase_requests (id, number, product_id, quantity, status, crossing_key, note, requested_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (crossing_key) DO NOTHING`,
		pr.ID, pr.Number, pr.ProductID, pr.Quantity, string(pr.Status), pr.CrossingKey, pr.Note, pr.RequestedBy, pr.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequest
	}
	return nil
}
