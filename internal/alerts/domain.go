package alerts

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// StockLevel classifies a product's quantity against the thresholds.
type StockLevel string

const (
	LevelInStock    StockLevel = "IN_STOCK"
	LevelLowStock   StockLevel = "LOW_STOCK"
	LevelOutOfStock StockLevel = "OUT_OF_STOCK"
)

// Alerting reports whether the level warrants an alert.
func (l StockLevel) Alerting() bool {
	return l == LevelLowStock || l == LevelOutOfStock
}

// Alert is raised when a product enters an alerting level.
type Alert struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"product_id"`
	CurrentStock   int        `json:"current_stock"`
	Threshold      int        `json:"threshold"`
	Status         StockLevel `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the alert still blocks new alerts for its product.
func (a Alert) Open() bool {
	return a.ResolvedAt == nil
}

// Settings configures classification, notification and auto-reorder.
type Settings struct {
	LowStockThreshold        int  `json:"low_stock_threshold" validate:"gte=0"`
	OutOfStockThreshold      int  `json:"out_of_stock_threshold" validate:"gte=0,ltefield=LowStockThreshold"`
	EnableAutoReorder        bool `json:"enable_auto_reorder"`
	AutoReorderThreshold     int  `json:"auto_reorder_threshold" validate:"gte=0"`
	NotifyAdminsOnLowStock   bool `json:"notify_admins_on_low_stock"`
	NotifySupplierOnLowStock bool `json:"notify_supplier_on_low_stock"`
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		LowStockThreshold:      10,
		OutOfStockThreshold:    0,
		AutoReorderThreshold:   5,
		NotifyAdminsOnLowStock: true,
	}
}

// Classify evaluates stock against settings; the first matching rule wins.
func Classify(settings Settings, stock int) StockLevel {
	switch {
	case stock <= settings.OutOfStockThreshold:
		return LevelOutOfStock
	case stock <= settings.LowStockThreshold:
		return LevelLowStock
	default:
		return LevelInStock
	}
}

func thresholdFor(settings Settings, level StockLevel) int {
	if level == LevelOutOfStock {
		return settings.OutOfStockThreshold
	}
	return settings.LowStockThreshold
}

// ReorderMark records that a reorder was requested since the last restock.
type ReorderMark struct {
	ProductID      string
	CrossingID     string
	StockAtRequest int
	RequestedAt    time.Time
}

// ReorderRequest is handed to the ReorderTrigger once per crossing.
type ReorderRequest struct {
	ProductID   string    `json:"product_id"`
	CrossingKey string    `json:"crossing_key"`
	Stock       int       `json:"stock"`
	RequestedAt time.Time `json:"requested_at"`
}

// EventKind names a best-effort side effect.
type EventKind string

const (
	EventNotifyAdmins   EventKind = "notify_admins"
	EventNotifySupplier EventKind = "notify_supplier"
	EventReorder        EventKind = "reorder"
)

// Event is a side effect scheduled after the posting commits. Key is
// stable per alert or crossing so a redelivered event can be deduplicated.
type Event struct {
	Kind    EventKind
	Key     string
	Alert   Alert
	Reorder ReorderRequest
}

var (
	// ErrOpenAlertExists is returned by stores when a product already has
	// an unresolved alert.
	ErrOpenAlertExists = fmt.Errorf("alerts: open alert already exists: %w", shared.ErrDuplicate)
	// ErrAlertNotFound indicates the alert id is unknown.
	ErrAlertNotFound = fmt.Errorf("alerts: alert not found: %w", shared.ErrNotFound)
	// ErrAlertResolved indicates the alert can no longer change.
	ErrAlertResolved = fmt.Errorf("alerts: alert already resolved: %w", shared.ErrInvalidTransition)
	// ErrInvalidSettings wraps validation failures of Settings.
	ErrInvalidSettings = fmt.Errorf("alerts: invalid settings: %w", shared.ErrInvalidInput)
)
