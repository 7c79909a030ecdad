package procurement

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Purchase request lifecycle statuses.
type PRStatus string

const (
	PRStatusDraft     PRStatus = "DRAFT"
	PRStatusSubmitted PRStatus = "SUBMITTED"
	PRStatusClosed    PRStatus = "CLOSED"
)

// PurchaseRequest is a replenishment request raised by auto-reorder.
// Purchasing reviews the DRAFT and submits it to a supplier.
type PurchaseRequest struct {
	ID          string
	Number      string
	ProductID   string
	Quantity    int
	Status      PRStatus
	CrossingKey string
	Note        string
	RequestedBy string
	CreatedAt   time.Time
}

// ErrDuplicateRequest indicates a request already exists for the crossing.
var ErrDuplicateRequest = fmt.Errorf("procurement: purchase request already raised: %w", shared.ErrDuplicate)
