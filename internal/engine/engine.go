// Package engine wires the stock ledger, alerting, fulfillment and picking
// services over one transactor and one locker.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/memstore"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Stores groups the persistence backends.
type Stores struct {
	Driver       shared.TxDriver
	Inventory    inventory.Store
	Fulfillments fulfillment.Store
	Orders       fulfillment.OrderSource
	PickLists    picking.Store
	Alerts       alerts.Store
	Audit        shared.AuditPort
}

// PostgresStores returns the pgx-backed stores sharing pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Driver:       db.NewTxManager(pool),
		Inventory:    inventory.NewRepository(pool),
		Fulfillments: fulfillment.NewRepository(pool),
		Orders:       fulfillment.NewOrderRepository(pool),
		PickLists:    picking.NewRepository(pool),
		Alerts:       alerts.NewRepository(pool),
		Audit:        db.NewAuditLogger(pool),
	}
}

// MemoryStores returns stores backed by store.
func MemoryStores(store *memstore.Store) Stores {
	return Stores{
		Driver:       store,
		Inventory:    store.Inventory(),
		Fulfillments: store.Fulfillments(),
		Orders:       store.Orders(),
		PickLists:    store.PickLists(),
		Alerts:       store.Alerts(),
		Audit:        store.Audit(),
	}
}

// Options tunes the services.
type Options struct {
	Settings           alerts.Settings
	AllowNegativeStock bool
	Locker             shared.Locker
	Dispatcher         alerts.Dispatcher
	Logger             *slog.Logger
	Metrics            *observability.Metrics
	Now                func() time.Time
}

// Engine exposes the wired services.
type Engine struct {
	Tx           *shared.TxRunner
	Alerts       *alerts.Engine
	Ledger       *inventory.Ledger
	Fulfillments *fulfillment.Orchestrator
	Picking      *picking.Aggregator
	Slips        *fulfillment.SlipGenerator
}

// Build wires every service. A nil Locker falls back to an in-process
// KeyedMutex, which only serialises callers inside this process.
func Build(stores Stores, opts Options) (*Engine, error) {
	if stores.Driver == nil || stores.Inventory == nil || stores.Fulfillments == nil ||
		stores.PickLists == nil || stores.Alerts == nil {
		return nil, errors.New("engine: incomplete stores")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	locker := opts.Locker
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	tx := shared.NewTransactor(stores.Driver)

	alertEngine, err := alerts.NewEngine(alerts.Config{
		Settings:   opts.Settings,
		Store:      stores.Alerts,
		Tx:         tx,
		Locker:     locker,
		Dispatcher: opts.Dispatcher,
		Audit:      stores.Audit,
		Logger:     opts.Logger.With(slog.String("component", "alerts")),
		Metrics:    opts.Metrics,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}

	ledger := inventory.NewLedger(stores.Inventory, tx, locker, alertEngine, inventory.LedgerConfig{
		AllowNegativeStock: opts.AllowNegativeStock,
		Audit:              stores.Audit,
		Logger:             opts.Logger.With(slog.String("component", "ledger")),
		Metrics:            opts.Metrics,
		Now:                opts.Now,
	})

	orchestrator := fulfillment.NewOrchestrator(stores.Fulfillments, tx, locker, ledger, fulfillment.OrchestratorConfig{
		Audit:   stores.Audit,
		Logger:  opts.Logger.With(slog.String("component", "fulfillment")),
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})

	aggregator := picking.NewAggregator(stores.PickLists, tx, locker, orchestrator, ledger, picking.AggregatorConfig{
		Logger:  opts.Logger.With(slog.String("component", "picking")),
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})

	var slips *fulfillment.SlipGenerator
	if stores.Orders != nil {
		slips = fulfillment.NewSlipGenerator(stores.Fulfillments, stores.Orders, ledger)
	}

	return &Engine{
		Tx:           tx,
		Alerts:       alertEngine,
		Ledger:       ledger,
		Fulfillments: orchestrator,
		Picking:      aggregator,
		Slips:        slips,
	}, nil
}
