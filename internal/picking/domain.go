package picking

import (
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Status is the lifecycle of a pick list.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Open reports whether pickers may still record progress.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// Item is one merged line: every unit of a product across the batch.
type Item struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	SKU            string  `json:"sku"`
	Location       *string `json:"location,omitempty"`
	TotalQuantity  int     `json:"total_quantity"`
	PickedQuantity int     `json:"picked_quantity"`
}

// Short returns how many units are still missing.
func (i Item) Short() int {
	return i.TotalQuantity - i.PickedQuantity
}

// PickList batches the outstanding items of several fulfillments.
type PickList struct {
	ID             string     `json:"id"`
	FulfillmentIDs []string   `json:"fulfillment_ids"`
	Status         Status     `json:"status"`
	Items          []Item     `json:"items"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Line returns the index of the line for productID, or -1.
func (p PickList) Line(productID string) int {
	for i, item := range p.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no mutable state with p.
func (p PickList) Clone() PickList {
	out := p
	out.FulfillmentIDs = append([]string(nil), p.FulfillmentIDs...)
	out.Items = append([]Item(nil), p.Items...)
	return out
}

// Merge folds the items of fulfillments into one line per product. The
// result does not depend on the order of fulfillments: they are visited by
// id, and lines are sorted by product id.
func Merge(fulfillments []fulfillment.Fulfillment) []Item {
	ordered := append([]fulfillment.Fulfillment(nil), fulfillments...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	lines := make(map[string]*Item)
	for _, f := range ordered {
		for _, it := range f.Items {
			line, ok := lines[it.ProductID]
			if !ok {
				lines[it.ProductID] = &Item{
					ProductID:     it.ProductID,
					ProductName:   it.ProductName,
					SKU:           it.SKU,
					Location:      it.Location,
					TotalQuantity: it.QuantityOrdered,
				}
				continue
			}
			line.TotalQuantity += it.QuantityOrdered
			if line.ProductName == "" {
				line.ProductName = it.ProductName
			}
			if line.SKU == "" {
				line.SKU = it.SKU
			}
			if line.Location == nil {
				line.Location = it.Location
			}
		}
	}
	out := make([]Item, 0, len(lines))
	for _, line := range lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func clamp(qty, upper int) int {
	if qty < 0 {
		return 0
	}
	if qty > upper {
		return upper
	}
	return qty
}

var (
	// ErrNotFound indicates the pick list does not exist.
	ErrNotFound = fmt.Errorf("picking: pick list not found: %w", shared.ErrNotFound)
	// ErrLineNotFound indicates the product is not on the pick list.
	ErrLineNotFound = fmt.Errorf("picking: product not on pick list: %w", shared.ErrNotFound)
	// ErrEmptyBatch indicates no PENDING fulfillment was supplied.
	ErrEmptyBatch = fmt.Errorf("picking: no pending fulfillments to pick: %w", shared.ErrEmptyBatch)
	// ErrIncompletePick indicates a line is still short.
	ErrIncompletePick = fmt.Errorf("picking: pick list has short lines: %w", shared.ErrIncompletePick)
	// ErrPickListClosed indicates the pick list is already completed.
	ErrPickListClosed = fmt.Errorf("picking: pick list already completed: %w", shared.ErrInvalidTransition)
)
