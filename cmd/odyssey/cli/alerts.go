package cli

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
)

func (c *CLI) alertsList(ctx context.Context, name string, args []string) int {
	if c.opts.Alerts == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	open, err := c.opts.Alerts.ListOpen(ctx)
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		if open == nil {
			open = []alerts.Alert{}
		}
		return c.writeJSON(name, open)
	}
	if len(open) == 0 {
		_, _ = fmt.Fprintln(c.opts.Stdout, "no open alerts")
		return ExitOK
	}
	for _, alert := range open {
		acked := ""
		if alert.AcknowledgedAt != nil {
			acked = " (acknowledged)"
		}
		_, _ = fmt.Fprintf(c.opts.Stdout, "%s %-12s %-13s stock %d threshold %d%s\n",
			alert.ID, alert.ProductID, alert.Status, alert.CurrentStock, alert.Threshold, acked)
	}
	return ExitOK
}

func (c *CLI) alertsAck(ctx context.Context, name string, args []string) int {
	return c.alertMutation(ctx, name, args, c.opts.Alerts, "acknowledged", func(ctx context.Context, id string) (alerts.Alert, error) {
		return c.opts.Alerts.Acknowledge(ctx, id)
	})
}

func (c *CLI) alertsResolve(ctx context.Context, name string, args []string) int {
	return c.alertMutation(ctx, name, args, c.opts.Alerts, "resolved", func(ctx context.Context, id string) (alerts.Alert, error) {
		return c.opts.Alerts.Resolve(ctx, id)
	})
}

func (c *CLI) alertMutation(ctx context.Context, name string, args []string, svc Alerts, verb string, apply func(context.Context, string) (alerts.Alert, error)) int {
	if svc == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	id := fs.String("id", "", "alert id")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	if *id == "" {
		return c.usageError(name, "--id is required")
	}
	alert, err := apply(ctx, *id)
	if err != nil {
		return c.fail(name, err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "alert %s for %s %s\n", alert.ID, alert.ProductID, verb)
	return ExitOK
}
