package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// OrderSource exposes order data owned by the order system.
type OrderSource interface {
	Order(ctx context.Context, orderID string) (OrderInfo, error)
}

// Catalog resolves product names missing from fulfillment items.
type Catalog interface {
	ProductName(ctx context.Context, productID string) (string, error)
}

// PackingSlip is the document that travels with a shipment.
type PackingSlip struct {
	FulfillmentID   string     `json:"fulfillment_id"`
	OrderNumber     string     `json:"order_number"`
	CustomerName    string     `json:"customer_name"`
	ShippingAddress string     `json:"shipping_address"`
	Items           []SlipItem `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SlipItem is one packed line.
type SlipItem struct {
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
}

// Render writes a plain-text slip using locale-aware number formatting.
func (s PackingSlip) Render(w io.Writer, tag language.Tag) error {
	p := message.NewPrinter(tag)
	total := 0
	if _, err := p.Fprintf(w, "PACKING SLIP  %s\n%s\n%s\n\n", s.OrderNumber, s.CustomerName, s.ShippingAddress); err != nil {
		return err
	}
	for _, item := range s.Items {
		total += item.Quantity
		if _, err := p.Fprintf(w, "%-16s %-32s %8d\n", item.SKU, item.ProductName, item.Quantity); err != nil {
			return err
		}
	}
	_, err := p.Fprintf(w, "\n%d items, %d units  (%s)\n", len(s.Items), total, s.CreatedAt.Format(time.RFC3339))
	return err
}

// SlipGenerator projects fulfillments into packing slips.
type SlipGenerator struct {
	fulfillments interface {
		Get(ctx context.Context, id string) (Fulfillment, error)
	}
	orders  OrderSource
	catalog Catalog
	now     func() time.Time
}

// NewSlipGenerator builds SlipGenerator. catalog may be nil.
func NewSlipGenerator(store Store, orders OrderSource, catalog Catalog) *SlipGenerator {
	return &SlipGenerator{
		fulfillments: store,
		orders:       orders,
		catalog:      catalog,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the slip of a fulfillment. The order lookup and product
// name resolution run concurrently.
func (g *SlipGenerator) Generate(ctx context.Context, fulfillmentID string) (PackingSlip, error) {
	f, err := g.fulfillments.Get(ctx, fulfillmentID)
	if err != nil {
		return PackingSlip{}, err
	}
	slip := PackingSlip{
		FulfillmentID: f.ID,
		Items:         make([]SlipItem, len(f.Items)),
		CreatedAt:     g.now(),
	}
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(8)
	grp.Go(func() error {
		order, err := g.orders.Order(gctx, f.OrderID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, f.OrderID)
			}
			return err
		}
		slip.OrderNumber = order.OrderNumber
		slip.CustomerName = order.CustomerName
		slip.ShippingAddress = order.ShippingAddress
		return nil
	})
	for i, item := range f.Items {
		i, item := i, item
		slip.Items[i] = SlipItem{ProductName: item.ProductName, SKU: item.SKU, Quantity: item.QuantityOrdered}
		if item.ProductName != "" || g.catalog == nil {
			continue
		}
		grp.Go(func() error {
			name, err := g.catalog.ProductName(gctx, item.ProductID)
			if err != nil {
				return err
			}
			slip.Items[i].ProductName = name
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return PackingSlip{}, err
	}
	return slip, nil
}
