package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
)

func (c *CLI) picklistCreate(ctx context.Context, name string, args []string) int {
	if c.opts.Picking == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	actor := fs.String("actor", "cli", "actor id")
	asJSON := fs.Bool("json", false, "print JSON")
	var ids stringList
	fs.Var(&ids, "fulfillment", "fulfillment id, repeatable or comma separated")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if len(ids) == 0 {
		return c.usageError(name, "at least one --fulfillment is required")
	}
	list, err := c.opts.Picking.CreatePickList(ctx, ids, *actor)
	if err != nil {
		return c.fail(name, err)
	}
	return c.printPickList(name, list, *asJSON)
}

func (c *CLI) picklistPick(ctx context.Context, name string, args []string) int {
	if c.opts.Picking == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "pick list id")
	product := fs.String("product", "", "product id")
	qty := fs.Int("qty", 0, "picked quantity, clamped to the line total")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" || *product == "" {
		return c.usageError(name, "--id and --product are required")
	}
	list, err := c.opts.Picking.RecordPick(ctx, *id, *product, *qty)
	if err != nil {
		return c.fail(name, err)
	}
	return c.printPickList(name, list, *asJSON)
}

func (c *CLI) picklistComplete(ctx context.Context, name string, args []string) int {
	if c.opts.Picking == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "pick list id")
	actor := fs.String("actor", "cli", "actor id")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" {
		return c.usageError(name, "--id is required")
	}
	list, err := c.opts.Picking.Complete(ctx, *id, *actor)
	if err != nil {
		return c.fail(name, err)
	}
	return c.printPickList(name, list, *asJSON)
}

func (c *CLI) picklistShow(ctx context.Context, name string, args []string) int {
	if c.opts.Picking == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "pick list id")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" {
		return c.usageError(name, "--id is required")
	}
	list, err := c.opts.Picking.Get(ctx, *id)
	if err != nil {
		return c.fail(name, err)
	}
	return c.printPickList(name, list, *asJSON)
}

func (c *CLI) printPickList(name string, list picking.PickList, asJSON bool) int {
	if asJSON {
		return c.writeJSON(name, list)
	}
	renderPickList(c.opts.Stdout, list)
	return ExitOK
}

func renderPickList(out io.Writer, list picking.PickList) {
	_, _ = fmt.Fprintf(out, "pick list %s %s (%d fulfillments)\n", list.ID, list.Status, len(list.FulfillmentIDs))
	for _, item := range list.Items {
		location := "-"
		if item.Location != nil {
			location = *item.Location
		}
		_, _ = fmt.Fprintf(out, " %-12s %-12s %-24s %-8s %d/%d\n",
			item.ProductID, item.SKU, item.ProductName, location, item.PickedQuantity, item.TotalQuantity)
	}
}
