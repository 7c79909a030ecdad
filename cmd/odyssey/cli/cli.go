package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/picking"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitRejected = 3
	ExitNotFound = 4
)

// Stock is the ledger surface used by the stock commands.
type Stock interface {
	Post(ctx context.Context, input inventory.PostInput) (inventory.Transaction, error)
	StockOf(ctx context.Context, productID string) (int, error)
	History(ctx context.Context, productID string, limit int) ([]inventory.Transaction, error)
}

// ProductRegistrar creates catalogue entries.
type ProductRegistrar interface {
	RegisterProduct(ctx context.Context, p inventory.Product) error
}

// OrderRegistrar mirrors order headers used by packing slips.
type OrderRegistrar interface {
	UpsertOrder(ctx context.Context, info fulfillment.OrderInfo) error
}

// Fulfillments is the orchestrator surface used by the fulfillment commands.
type Fulfillments interface {
	Create(ctx context.Context, input fulfillment.CreateInput) (fulfillment.Fulfillment, error)
	Transition(ctx context.Context, input fulfillment.TransitionInput) (fulfillment.Fulfillment, error)
	Get(ctx context.Context, id string) (fulfillment.Fulfillment, error)
	Steps(ctx context.Context, id string) ([]fulfillment.Step, error)
}

// Slips generates packing slips.
type Slips interface {
	Generate(ctx context.Context, fulfillmentID string) (fulfillment.PackingSlip, error)
}

// Picking is the aggregator surface used by the picklist commands.
type Picking interface {
	CreatePickList(ctx context.Context, ids []string, actorID string) (picking.PickList, error)
	RecordPick(ctx context.Context, pickListID, productID string, picked int) (picking.PickList, error)
	Complete(ctx context.Context, pickListID, actorID string) (picking.PickList, error)
	Get(ctx context.Context, id string) (picking.PickList, error)
}

// Alerts is the alert engine surface used by the alerts commands.
type Alerts interface {
	ListOpen(ctx context.Context) ([]alerts.Alert, error)
	Acknowledge(ctx context.Context, alertID string) (alerts.Alert, error)
	Resolve(ctx context.Context, alertID string) (alerts.Alert, error)
}

// Options wires the CLI to its services. Nil services disable the
// commands that need them.
type Options struct {
	Stock        Stock
	Products     ProductRegistrar
	Orders       OrderRegistrar
	Fulfillments Fulfillments
	Slips        Slips
	Picking      Picking
	Alerts       Alerts
	Jobs         *JobsCLI
	Migrate      func(ctx context.Context) error
	SlipLocale   language.Tag
	Stdout       io.Writer
	Stderr       io.Writer
}

// CLI dispatches operator commands.
type CLI struct {
	opts Options
}

// New builds CLI.
func New(opts Options) *CLI {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.SlipLocale == language.Und {
		opts.SlipLocale = language.English
	}
	return &CLI{opts: opts}
}

const usage = `usage: odyssey <command> [subcommand] [flags]

commands:
  migrate
  stock register|post|show
  fulfillment create|transition|show|slip
  picklist create|pick|complete|show
  alerts list|ack|resolve
  jobs trigger|inspect
`

// Run executes args and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(c.opts.Stderr, usage)
		return ExitUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return c.migrate(ctx)
	case "stock":
		return c.sub(ctx, cmd, rest, map[string]command{
			"register": c.stockRegister,
			"post":     c.stockPost,
			"show":     c.stockShow,
		})
	case "fulfillment":
		return c.sub(ctx, cmd, rest, map[string]command{
			"create":     c.fulfillmentCreate,
			"transition": c.fulfillmentTransition,
			"show":       c.fulfillmentShow,
			"slip":       c.fulfillmentSlip,
		})
	case "picklist":
		return c.sub(ctx, cmd, rest, map[string]command{
			"create":   c.picklistCreate,
			"pick":     c.picklistPick,
			"complete": c.picklistComplete,
			"show":     c.picklistShow,
		})
	case "alerts":
		return c.sub(ctx, cmd, rest, map[string]command{
			"list":    c.alertsList,
			"ack":     c.alertsAck,
			"resolve": c.alertsResolve,
		})
	case "jobs":
		return c.sub(ctx, cmd, rest, map[string]command{
			"trigger": c.jobsTrigger,
			"inspect": c.jobsInspect,
		})
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(c.opts.Stdout, usage)
		return ExitOK
	default:
		_, _ = fmt.Fprintf(c.opts.Stderr, "unknown command %q\n%s", cmd, usage)
		return ExitUsage
	}
}

type command func(ctx context.Context, name string, args []string) int

func (c *CLI) sub(ctx context.Context, group string, args []string, commands map[string]command) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintf(c.opts.Stderr, "%s: subcommand required\n", group)
		return ExitUsage
	}
	fn, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(c.opts.Stderr, "%s: unknown subcommand %q\n", group, args[0])
		return ExitUsage
	}
	return fn(ctx, group+" "+args[0], args[1:])
}

func (c *CLI) migrate(ctx context.Context) int {
	if c.opts.Migrate == nil {
		return c.unavailable("migrate")
	}
	if err := c.opts.Migrate(ctx); err != nil {
		return c.fail("migrate", err)
	}
	_, _ = fmt.Fprintln(c.opts.Stdout, "schema applied")
	return ExitOK
}

func (c *CLI) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.opts.Stderr)
	return fs
}

func (c *CLI) parse(fs *flag.FlagSet, args []string) bool {
	return fs.Parse(args) == nil
}

func (c *CLI) usageError(name, format string, args ...any) int {
	_, _ = fmt.Fprintf(c.opts.Stderr, "%s: %s\n", name, fmt.Sprintf(format, args...))
	return ExitUsage
}

func (c *CLI) unavailable(name string) int {
	_, _ = fmt.Fprintf(c.opts.Stderr, "%s: not available in this configuration\n", name)
	return ExitFailure
}

// fail prints err and maps its kind to an exit code.
func (c *CLI) fail(name string, err error) int {
	_, _ = fmt.Fprintf(c.opts.Stderr, "%s: %v\n", name, err)
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, shared.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, shared.ErrInvalidInput):
		return ExitUsage
	case errors.Is(err, shared.ErrNegativeStock),
		errors.Is(err, shared.ErrInvalidTransition),
		errors.Is(err, shared.ErrIncompletePick),
		errors.Is(err, shared.ErrEmptyBatch),
		errors.Is(err, shared.ErrDuplicate):
		return ExitRejected
	default:
		return ExitFailure
	}
}

func (c *CLI) writeJSON(name string, v any) int {
	enc := json.NewEncoder(c.opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(c.opts.Stderr, "%s: encode json: %v\n", name, err)
		return ExitFailure
	}
	return ExitOK
}

// stringList is a repeatable flag that also splits comma separated values.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}
