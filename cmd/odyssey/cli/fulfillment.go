package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
)

// parseItem reads PRODUCT:SKU:QTY[:LOCATION].
func parseItem(raw string) (fulfillment.ItemInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return fulfillment.ItemInput{}, fmt.Errorf("item %q: expected PRODUCT:SKU:QTY[:LOCATION]", raw)
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return fulfillment.ItemInput{}, fmt.Errorf("item %q: quantity: %w", raw, err)
	}
	item := fulfillment.ItemInput{ProductID: parts[0], SKU: parts[1], Quantity: qty}
	if len(parts) == 4 && parts[3] != "" {
		loc := parts[3]
		item.Location = &loc
	}
	return item, nil
}

func (c *CLI) fulfillmentCreate(ctx context.Context, name string, args []string) int {
	if c.opts.Fulfillments == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	orderID := fs.String("order", "", "order id")
	number := fs.String("number", "", "order number printed on the slip")
	customer := fs.String("customer", "", "customer name")
	address := fs.String("address", "", "shipping address")
	actor := fs.String("actor", "cli", "actor id")
	asJSON := fs.Bool("json", false, "print JSON")
	var rawItems stringList
	fs.Var(&rawItems, "item", "PRODUCT:SKU:QTY[:LOCATION], repeatable")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *orderID == "" || len(rawItems) == 0 {
		return c.usageError(name, "--order and at least one --item are required")
	}
	items := make([]fulfillment.ItemInput, 0, len(rawItems))
	for _, raw := range rawItems {
		item, err := parseItem(raw)
		if err != nil {
			return c.usageError(name, "%v", err)
		}
		items = append(items, item)
	}
	if *number != "" && c.opts.Orders != nil {
		if err := c.opts.Orders.UpsertOrder(ctx, fulfillment.OrderInfo{
			OrderID:         *orderID,
			OrderNumber:     *number,
			CustomerName:    *customer,
			ShippingAddress: *address,
		}); err != nil {
			return c.fail(name, err)
		}
	}
	f, err := c.opts.Fulfillments.Create(ctx, fulfillment.CreateInput{OrderID: *orderID, Items: items, ActorID: *actor})
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		return c.writeJSON(name, f)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "fulfillment %s created for order %s (%d items)\n", f.ID, f.OrderID, len(f.Items))
	return ExitOK
}

func (c *CLI) fulfillmentTransition(ctx context.Context, name string, args []string) int {
	if c.opts.Fulfillments == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "fulfillment id")
	target := fs.String("to", "", "target status")
	actor := fs.String("actor", "cli", "actor id")
	notes := fs.String("notes", "", "step notes")
	label := fs.String("label", "", "shipping label")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" || *target == "" {
		return c.usageError(name, "--id and --to are required")
	}
	input := fulfillment.TransitionInput{
		FulfillmentID: *id,
		Target:        fulfillment.Status(strings.ToUpper(*target)),
		ActorID:       *actor,
		Notes:         *notes,
	}
	if *label != "" {
		input.ShippingLabel = label
	}
	f, err := c.opts.Fulfillments.Transition(ctx, input)
	if err != nil {
		return c.fail(name, err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "fulfillment %s is %s\n", f.ID, f.Status)
	return ExitOK
}

type fulfillmentReport struct {
	Fulfillment fulfillment.Fulfillment `json:"fulfillment"`
	Steps       []fulfillment.Step      `json:"steps"`
}

func (c *CLI) fulfillmentShow(ctx context.Context, name string, args []string) int {
	if c.opts.Fulfillments == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "fulfillment id")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" {
		return c.usageError(name, "--id is required")
	}
	f, err := c.opts.Fulfillments.Get(ctx, *id)
	if err != nil {
		return c.fail(name, err)
	}
	steps, err := c.opts.Fulfillments.Steps(ctx, *id)
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		return c.writeJSON(name, fulfillmentReport{Fulfillment: f, Steps: steps})
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "fulfillment %s order %s status %s\n", f.ID, f.OrderID, f.Status)
	for _, item := range f.Items {
		_, _ = fmt.Fprintf(c.opts.Stdout, " %-12s %-12s %d/%d\n", item.ProductID, item.SKU, item.QuantityPicked, item.QuantityOrdered)
	}
	for _, step := range steps {
		_, _ = fmt.Fprintf(c.opts.Stdout, " %s %-18s %s %s\n",
			step.CompletedAt.Format("2006-01-02 15:04:05"), step.Status, step.CompletedBy, step.Notes)
	}
	return ExitOK
}

func (c *CLI) fulfillmentSlip(ctx context.Context, name string, args []string) int {
	if c.opts.Slips == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "fulfillment id")
	locale := fs.String("locale", "", "BCP 47 tag for number formatting")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" {
		return c.usageError(name, "--id is required")
	}
	tag := c.opts.SlipLocale
	if *locale != "" {
		parsed, err := language.Parse(*locale)
		if err != nil {
			return c.usageError(name, "invalid locale %q", *locale)
		}
		tag = parsed
	}
	slip, err := c.opts.Slips.Generate(ctx, *id)
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		return c.writeJSON(name, slip)
	}
	if err := slip.Render(c.opts.Stdout, tag); err != nil {
		return c.fail(name, err)
	}
	return ExitOK
}
