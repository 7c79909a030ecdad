package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Reason classifies a stock movement.
type Reason string

const (
	ReasonSale       Reason = "SALE"
	ReasonRestock    Reason = "RESTOCK"
	ReasonAdjustment Reason = "ADJUSTMENT"
	ReasonReturn     Reason = "RETURN"
	ReasonDamage     Reason = "DAMAGE"
)

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	QuantityDelta int       `json:"quantity_delta"`
	PreviousStock int       `json:"previous_stock"`
	NewStock      int       `json:"new_stock"`
	Reason        Reason    `json:"reason"`
	Notes         string    `json:"notes,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
}

// Product is a stocked product with its running total.
type Product struct {
	ID       string
	SKU      string
	Name     string
	Quantity int
}

// PostInput describes one movement.
type PostInput struct {
	ProductID      string `validate:"required"`
	Delta          int    `validate:"ne=0"`
	Reason         Reason `validate:"required,oneof=SALE RESTOCK ADJUSTMENT RETURN DAMAGE"`
	Notes          string
	Reference      string
	ActorID        string
	AllowBackorder bool
}

var (
	// ErrNegativeStock indicates the posting would drive stock below zero.
	ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", shared.ErrNegativeStock)
	// ErrInvalidQuantity indicates a zero delta.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be non-zero: %w", shared.ErrInvalidInput)
	// ErrProductNotFound indicates an unknown product.
	ErrProductNotFound = fmt.Errorf("inventory: product not found: %w", shared.ErrNotFound)
)
