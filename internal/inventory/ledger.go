package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Store persists the running stock total and the ledger. CurrentStock is
// read with a row lock when ctx carries a transaction.
type Store interface {
	CurrentStock(ctx context.Context, productID string) (int, error)
	AppendTransaction(ctx context.Context, tx Transaction) error
	SetStock(ctx context.Context, productID string, quantity int) error
	ProductName(ctx context.Context, productID string) (string, error)
	Transactions(ctx context.Context, productID string, limit int) ([]Transaction, error)
	Products(ctx context.Context) ([]Product, error)
}

// AlertEvaluator receives the post-transaction stock of each touched product.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, productID string, currentStock int) (*alerts.Alert, error)
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	AllowNegativeStock bool
	Audit              shared.AuditPort
	Logger             *slog.Logger
	Metrics            *observability.Metrics
	Now                func() time.Time
}

// Ledger is the single write path for stock.
type Ledger struct {
	store    Store
	tx       shared.Transactor
	locker   shared.Locker
	alerts   AlertEvaluator
	allowNeg bool
	audit    shared.AuditPort
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
	now      func() time.Time
}

// NewLedger builds Ledger. evaluator may be nil when alerting is disabled.
func NewLedger(store Store, tx shared.Transactor, locker shared.Locker, evaluator AlertEvaluator, cfg LedgerConfig) *Ledger {
	l := &Ledger{
		store:    store,
		tx:       tx,
		locker:   locker,
		alerts:   evaluator,
		allowNeg: cfg.AllowNegativeStock,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		validate: validator.New(),
		now:      cfg.Now,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	return l
}

func (l *Ledger) validateInput(in PostInput) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 && fields[0].Field() == "Delta" {
		return ErrInvalidQuantity
	}
	return fmt.Errorf("inventory: %v: %w", err, shared.ErrInvalidInput)
}

// Post records a single movement.
func (l *Ledger) Post(ctx context.Context, input PostInput) (Transaction, error) {
	posted, err := l.PostBatch(ctx, []PostInput{input})
	if err != nil {
		return Transaction{}, err
	}
	return posted[0], nil
}

// PostBatch records movements atomically: either every entry is written or
// none is. Movements of the same product apply in input order and the
// alert engine sees each product's final stock once. Inside an enclosing
// transaction the batch joins it.
func (l *Ledger) PostBatch(ctx context.Context, inputs []PostInput) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("inventory: no movements: %w", shared.ErrEmptyBatch)
	}
	keys := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if err := l.validateInput(in); err != nil {
			return nil, err
		}
		keys = append(keys, shared.ProductLockKey(in.ProductID))
	}

	var posted []Transaction
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, l.locker, keys...); err != nil {
			return err
		}
		running := make(map[string]int, len(inputs))
		var touched []string
		posted = make([]Transaction, 0, len(inputs))
		now := l.now()
		for _, in := range inputs {
			current, seen := running[in.ProductID]
			if !seen {
				stock, err := l.store.CurrentStock(ctx, in.ProductID)
				if err != nil {
					return err
				}
				current = stock
				touched = append(touched, in.ProductID)
			}
			next := current + in.Delta
			if next < 0 && !l.allowNeg && !in.AllowBackorder {
				return fmt.Errorf("%w: product %s has %d, requested %d", ErrNegativeStock, in.ProductID, current, in.Delta)
			}
			entry := Transaction{
				ID:            uuid.NewString(),
				ProductID:     in.ProductID,
				QuantityDelta: in.Delta,
				PreviousStock: current,
				NewStock:      next,
				Reason:        in.Reason,
				Notes:         in.Notes,
				Reference:     in.Reference,
				CreatedAt:     now,
				CreatedBy:     in.ActorID,
			}
			if err := l.store.AppendTransaction(ctx, entry); err != nil {
				return err
			}
			running[in.ProductID] = next
			posted = append(posted, entry)
		}
		for _, productID := range touched {
			if err := l.store.SetStock(ctx, productID, running[productID]); err != nil {
				return err
			}
		}
		if l.alerts != nil {
			for _, productID := range touched {
				if _, err := l.alerts.Evaluate(ctx, productID, running[productID]); err != nil {
					return err
				}
			}
		}
		shared.AfterCommit(ctx, func(ctx context.Context) {
			l.committed(ctx, posted)
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNegativeStock) {
			l.metrics.NegativeStockRejected()
		}
		return nil, err
	}
	return posted, nil
}

func (l *Ledger) committed(ctx context.Context, posted []Transaction) {
	for _, entry := range posted {
		l.metrics.StockPosted(string(entry.Reason), 1)
		l.logger.Debug("stock posted",
			slog.String("product_id", entry.ProductID),
			slog.Int("delta", entry.QuantityDelta),
			slog.Int("new_stock", entry.NewStock),
			slog.String("reason", string(entry.Reason)))
		if l.audit == nil {
			continue
		}
		_ = l.audit.Record(ctx, shared.AuditLog{
			ActorID:  entry.CreatedBy,
			Action:   fmt.Sprintf("inventory:%s", entry.Reason),
			Entity:   "inventory_tx",
			EntityID: entry.ID,
			Meta: map[string]any{
				"product_id": entry.ProductID,
				"delta":      entry.QuantityDelta,
				"new_stock":  entry.NewStock,
				"reference":  entry.Reference,
			},
			At: entry.CreatedAt,
		})
	}
}

// Reevaluate re-runs alert evaluation against the product's current stock.
func (l *Ledger) Reevaluate(ctx context.Context, productID string) (*alerts.Alert, error) {
	if l.alerts == nil {
		return nil, nil
	}
	var created *alerts.Alert
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := shared.Lock(ctx, l.locker, shared.ProductLockKey(productID)); err != nil {
			return err
		}
		stock, err := l.store.CurrentStock(ctx, productID)
		if err != nil {
			return err
		}
		created, err = l.alerts.Evaluate(ctx, productID, stock)
		return err
	})
	return created, err
}

// ReevaluateAll sweeps every product, continuing past individual failures.
// It returns the number of alerts created.
func (l *Ledger) ReevaluateAll(ctx context.Context) (int, error) {
	products, err := l.store.Products(ctx)
	if err != nil {
		return 0, err
	}
	var (
		created int
		errs    []error
	)
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		alert, err := l.Reevaluate(ctx, p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", p.ID, err))
			continue
		}
		if alert != nil {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// StockOf returns the running total of a product.
func (l *Ledger) StockOf(ctx context.Context, productID string) (int, error) {
	return l.store.CurrentStock(ctx, productID)
}

// ProductName resolves a product's display name.
func (l *Ledger) ProductName(ctx context.Context, productID string) (string, error) {
	return l.store.ProductName(ctx, productID)
}

// History lists the most recent ledger entries of a product, newest first.
func (l *Ledger) History(ctx context.Context, productID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.Transactions(ctx, productID, limit)
}
