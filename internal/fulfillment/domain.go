package fulfillment

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// ============================================================================
// FULFILLMENT STATUS
// ============================================================================

// Status represents the physical progress of an order.
type Status string

const (
	StatusPending          Status = "PENDING"            // Accepted, waiting for a pick run
	StatusProcessing       Status = "PROCESSING"         // Claimed by an open pick list
	StatusPicked           Status = "PICKED"             // All items collected
	StatusPacked           Status = "PACKED"             // Boxed
	StatusReadyForShipping Status = "READY_FOR_SHIPPING" // Labelled, waiting for carrier
	StatusShipped          Status = "SHIPPED"            // Handed to carrier, stock decremented
	StatusDelivered        Status = "DELIVERED"          // Customer received goods
	StatusOnHold           Status = "ON_HOLD"            // Paused, resumes to the held-from status
	StatusCancelled        Status = "CANCELLED"          // Abandoned before picking finished
)

var forward = map[Status][]Status{
	StatusPending:          {StatusProcessing, StatusOnHold, StatusCancelled},
	StatusProcessing:       {StatusPicked, StatusOnHold, StatusCancelled},
	StatusPicked:           {StatusPacked, StatusOnHold},
	StatusPacked:           {StatusReadyForShipping, StatusOnHold},
	StatusReadyForShipping: {StatusShipped},
	StatusShipped:          {StatusDelivered},
}

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPicked, StatusPacked, StatusReadyForShipping,
		StatusShipped, StatusDelivered, StatusOnHold, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ============================================================================
// ENTITIES
// ============================================================================

// Item is one ordered product. 0 <= QuantityPicked <= QuantityOrdered.
type Item struct {
	OrderID         string  `json:"order_id"`
	ProductID       string  `json:"product_id"`
	SKU             string  `json:"sku"`
	ProductName     string  `json:"product_name,omitempty"`
	QuantityOrdered int     `json:"quantity_ordered"`
	QuantityPicked  int     `json:"quantity_picked"`
	Location        *string `json:"location,omitempty"`
}

// Validate checks the picked-quantity bounds.
func (i Item) Validate() error {
	if i.QuantityOrdered <= 0 {
		return fmt.Errorf("fulfillment: item %s quantity must be positive: %w", i.ProductID, shared.ErrInvalidInput)
	}
	if i.QuantityPicked < 0 || i.QuantityPicked > i.QuantityOrdered {
		return fmt.Errorf("fulfillment: item %s picked %d of %d: %w", i.ProductID, i.QuantityPicked, i.QuantityOrdered, shared.ErrInvalidInput)
	}
	return nil
}

// Fulfillment tracks one order from acceptance to delivery.
type Fulfillment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	Status        Status    `json:"status"`
	HeldFrom      Status    `json:"held_from,omitempty"`
	Items         []Item    `json:"items"`
	PickedBy      *string   `json:"picked_by,omitempty"`
	PackedBy      *string   `json:"packed_by,omitempty"`
	ShippingLabel *string   `json:"shipping_label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanTransitionTo reports whether target is reachable in one step. An
// ON_HOLD fulfillment may only return to the status it was held from.
func (f Fulfillment) CanTransitionTo(target Status) bool {
	if f.Status == StatusOnHold {
		return f.HeldFrom != "" && target == f.HeldFrom
	}
	for _, next := range forward[f.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with f.
func (f Fulfillment) Clone() Fulfillment {
	out := f
	out.Items = make([]Item, len(f.Items))
	copy(out.Items, f.Items)
	return out
}

// Step is an immutable audit record of a transition.
type Step struct {
	FulfillmentID string    `json:"fulfillment_id"`
	Status        Status    `json:"status"`
	CompletedBy   string    `json:"completed_by"`
	CompletedAt   time.Time `json:"completed_at"`
	Notes         string    `json:"notes,omitempty"`
}

// OrderInfo is what the order system exposes to the packing slip.
type OrderInfo struct {
	OrderID         string `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	CustomerName    string `json:"customer_name"`
	ShippingAddress string `json:"shipping_address"`
}

// ============================================================================
// INPUTS & ERRORS
// ============================================================================

// ItemInput describes an ordered product when creating a fulfillment.
type ItemInput struct {
	ProductID   string `validate:"required"`
	SKU         string `validate:"required"`
	ProductName string
	Quantity    int `validate:"gt=0"`
	Location    *string
}

// CreateInput creates a PENDING fulfillment for an order.
type CreateInput struct {
	OrderID string      `validate:"required"`
	Items   []ItemInput `validate:"required,min=1,dive"`
	ActorID string
}

// TransitionInput moves a fulfillment to Target.
type TransitionInput struct {
	FulfillmentID string `validate:"required"`
	Target        Status `validate:"required"`
	ActorID       string `validate:"required"`
	Notes         string
	ShippingLabel *string
}

var (
	// ErrNotFound indicates the fulfillment does not exist.
	ErrNotFound = fmt.Errorf("fulfillment: not found: %w", shared.ErrNotFound)
	// ErrOrderNotFound indicates the order source has no such order.
	ErrOrderNotFound = fmt.Errorf("fulfillment: order not found: %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates the target is not reachable.
	ErrInvalidTransition = fmt.Errorf("fulfillment: invalid status transition: %w", shared.ErrInvalidTransition)
	// ErrDuplicateOrder indicates the order already has a fulfillment.
	ErrDuplicateOrder = fmt.Errorf("fulfillment: order already has a fulfillment: %w", shared.ErrDuplicate)
)
