package alerts

import (
	"context"
	"fmt"
)

// Notifier delivers alert notifications.
type Notifier interface {
	NotifyAdmins(ctx context.Context, alert Alert) error
	NotifySupplier(ctx context.Context, alert Alert) error
}

// ReorderTrigger requests replenishment. Implementations must treat a
// repeated CrossingKey as already handled.
type ReorderTrigger interface {
	RequestReorder(ctx context.Context, req ReorderRequest) error
}

// InlineDispatcher delivers events in-process. It suits tests and
// single-binary deployments; production wiring hands events to the job
// queue instead.
type InlineDispatcher struct {
	Notifier Notifier
	Reorder  ReorderTrigger
}

// Dispatch routes event to the matching collaborator.
func (d InlineDispatcher) Dispatch(ctx context.Context, event Event) error {
	return Deliver(ctx, d.Notifier, d.Reorder, event)
}

// Deliver performs the side effect carried by event. Missing collaborators
// are skipped.
func Deliver(ctx context.Context, notifier Notifier, reorder ReorderTrigger, event Event) error {
	switch event.Kind {
	case EventNotifyAdmins:
		if notifier == nil {
			return nil
		}
		return notifier.NotifyAdmins(ctx, event.Alert)
	case EventNotifySupplier:
		if notifier == nil {
			return nil
		}
		return notifier.NotifySupplier(ctx, event.Alert)
	case EventReorder:
		if reorder == nil {
			return nil
		}
		return reorder.RequestReorder(ctx, event.Reorder)
	default:
		return fmt.Errorf("alerts: unknown event kind %q", event.Kind)
	}
}
