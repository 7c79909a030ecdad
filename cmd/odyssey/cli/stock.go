package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
)

func (c *CLI) stockRegister(ctx context.Context, name string, args []string) int {
	if c.opts.Products == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "product id")
	sku := fs.String("sku", "", "stock keeping unit")
	productName := fs.String("name", "", "display name")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" || *sku == "" {
		return c.usageError(name, "--id and --sku are required")
	}
	if err := c.opts.Products.RegisterProduct(ctx, inventory.Product{ID: *id, SKU: *sku, Name: *productName}); err != nil {
		return c.fail(name, err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "registered %s (%s)\n", *id, *sku)
	return ExitOK
}

func (c *CLI) stockPost(ctx context.Context, name string, args []string) int {
	if c.opts.Stock == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	product := fs.String("product", "", "product id")
	delta := fs.Int("delta", 0, "signed quantity change")
	reason := fs.String("reason", string(inventory.ReasonAdjustment), "SALE|RESTOCK|ADJUSTMENT|RETURN|DAMAGE")
	notes := fs.String("notes", "", "free text")
	reference := fs.String("ref", "", "external reference")
	actor := fs.String("actor", "cli", "actor id")
	backorder := fs.Bool("backorder", false, "allow the posting to drive stock negative")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *product == "" {
		return c.usageError(name, "--product is required")
	}
	tx, err := c.opts.Stock.Post(ctx, inventory.PostInput{
		ProductID:      *product,
		Delta:          *delta,
		Reason:         inventory.Reason(strings.ToUpper(*reason)),
		Notes:          *notes,
		Reference:      *reference,
		ActorID:        *actor,
		AllowBackorder: *backorder,
	})
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		return c.writeJSON(name, tx)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "%s %+d %s: %d -> %d\n", tx.ProductID, tx.QuantityDelta, tx.Reason, tx.PreviousStock, tx.NewStock)
	return ExitOK
}

type stockReport struct {
	ProductID string                  `json:"product_id"`
	Stock     int                     `json:"stock"`
	History   []inventory.Transaction `json:"history"`
}

func (c *CLI) stockShow(ctx context.Context, name string, args []string) int {
	if c.opts.Stock == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	product := fs.String("product", "", "product id")
	limit := fs.Int("limit", 10, "history entries, newest first")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *product == "" {
		return c.usageError(name, "--product is required")
	}
	stock, err := c.opts.Stock.StockOf(ctx, *product)
	if err != nil {
		return c.fail(name, err)
	}
	history, err := c.opts.Stock.History(ctx, *product, *limit)
	if err != nil {
		return c.fail(name, err)
	}
	report := stockReport{ProductID: *product, Stock: stock, History: history}
	if *asJSON {
		return c.writeJSON(name, report)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "%s stock %d\n", report.ProductID, report.Stock)
	for _, tx := range report.History {
		_, _ = fmt.Fprintf(c.opts.Stdout, " %s %-10s %+5d -> %5d %s\n",
			tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Reason, tx.QuantityDelta, tx.NewStock, tx.Reference)
	}
	return ExitOK
}
