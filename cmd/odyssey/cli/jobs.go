package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-fulfillment/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
	now       func() time.Time
}

// NewJobsCLI initialises the CLI helpers against the queue redis.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	if opts.Addr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	return newJobsCLI(asynq.NewClient(opts), asynq.NewInspector(opts)), nil
}

func newJobsCLI(client taskEnqueuer, inspector queueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector, now: func() time.Time { return time.Now().UTC() }}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskInventoryAlertSweep:
		task, err = jobs.NewAlertSweepTask(c.now())
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// TaskSummary is the printable part of a task.
type TaskSummary struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Retried   int       `json:"retried"`
	LastError string    `json:"last_error,omitempty"`
	NextRunAt time.Time `json:"next_run_at"`
}

// QueueReport combines the queue counters with the head of the scheduled
// and retry sets.
type QueueReport struct {
	Stats     QueueStats    `json:"stats"`
	Scheduled []TaskSummary `json:"scheduled"`
	Retry     []TaskSummary `json:"retry"`
}

// Inspect reads the queue counters and the first size scheduled and retry
// tasks in parallel.
func (c *JobsCLI) Inspect(ctx context.Context, size int) (QueueReport, error) {
	if c == nil || c.inspector == nil {
		return QueueReport{}, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	report := QueueReport{Stats: QueueStats{Queue: jobs.QueueDefault}}
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
		if err != nil {
			return fmt.Errorf("queue info: %w", err)
		}
		if info != nil {
			report.Stats.Pending = info.Pending
			report.Stats.Active = info.Active
			report.Stats.Scheduled = info.Scheduled
			report.Stats.Retry = info.Retry
			report.Stats.Failed = info.Failed
		}
		return nil
	})
	grp.Go(func() error {
		tasks, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
		if err != nil {
			return fmt.Errorf("scheduled tasks: %w", err)
		}
		report.Scheduled = summarise(tasks)
		return gctx.Err()
	})
	grp.Go(func() error {
		tasks, err := c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
		if err != nil {
			return fmt.Errorf("retry tasks: %w", err)
		}
		report.Retry = summarise(tasks)
		return gctx.Err()
	})
	if err := grp.Wait(); err != nil {
		return QueueReport{}, err
	}
	return report, nil
}

func summarise(tasks []*asynq.TaskInfo) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		out = append(out, TaskSummary{ID: t.ID, Type: t.Type, Retried: t.Retried, LastError: t.LastErr, NextRunAt: t.NextProcessAt})
	}
	return out
}

func (c *CLI) jobsTrigger(ctx context.Context, name string, args []string) int {
	if c.opts.Jobs == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	job := fs.String("name", jobs.TaskInventoryAlertSweep, "task type to enqueue")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	info, err := c.opts.Jobs.Trigger(ctx, *job)
	if err != nil {
		return c.fail(name, err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return ExitOK
}

func (c *CLI) jobsInspect(ctx context.Context, name string, args []string) int {
	if c.opts.Jobs == nil {
		return c.unavailable(name)
	}
	fs := c.flags(name)
	size := fs.Int("size", 10, "tasks listed per set")
	asJSON := fs.Bool("json", false, "print JSON")
	if !c.parse(fs, args) {
		return ExitUsage
	}
	report, err := c.opts.Jobs.Inspect(ctx, *size)
	if err != nil {
		return c.fail(name, err)
	}
	if *asJSON {
		return c.writeJSON(name, report)
	}
	s := report.Stats
	_, _ = fmt.Fprintf(c.opts.Stdout, "queue %s: pending %d active %d scheduled %d retry %d failed %d\n",
		s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
	for _, t := range report.Retry {
		_, _ = fmt.Fprintf(c.opts.Stdout, " retry %s %s (%d) %s\n", t.ID, t.Type, t.Retried, t.LastError)
	}
	for _, t := range report.Scheduled {
		_, _ = fmt.Fprintf(c.opts.Stdout, " scheduled %s %s at %s\n", t.ID, t.Type, t.NextRunAt.Format(time.RFC3339))
	}
	return ExitOK
}
