package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertNotifyAdmins delivers a stock alert to administrators.
	TaskAlertNotifyAdmins = "alerts:notify_admins"
	// TaskAlertNotifySupplier delivers a stock alert to the supplier.
	TaskAlertNotifySupplier = "alerts:notify_supplier"
	// TaskReorderRequest raises a purchase request for a reorder crossing.
	TaskReorderRequest = "procurement:reorder"
	// TaskInventoryAlertSweep re-evaluates every product against the thresholds.
	TaskInventoryAlertSweep = "inventory:alert_sweep"
)

// EventPayload is the wire form of an alerts.Event.
type EventPayload struct {
	Key     string                 `json:"key"`
	Alert   *alerts.Alert          `json:"alert,omitempty"`
	Reorder *alerts.ReorderRequest `json:"reorder,omitempty"`
}

// AlertSweepPayload carries scheduling metadata.
type AlertSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// TaskTypeFor maps an event kind to its task type.
func TaskTypeFor(kind alerts.EventKind) (string, error) {
	switch kind {
	case alerts.EventNotifyAdmins:
		return TaskAlertNotifyAdmins, nil
	case alerts.EventNotifySupplier:
		return TaskAlertNotifySupplier, nil
	case alerts.EventReorder:
		return TaskReorderRequest, nil
	default:
		return "", fmt.Errorf("jobs: unknown event kind %q", kind)
	}
}

func kindFor(taskType string) (alerts.EventKind, error) {
	switch taskType {
	case TaskAlertNotifyAdmins:
		return alerts.EventNotifyAdmins, nil
	case TaskAlertNotifySupplier:
		return alerts.EventNotifySupplier, nil
	case TaskReorderRequest:
		return alerts.EventReorder, nil
	default:
		return "", fmt.Errorf("jobs: unknown task type %q", taskType)
	}
}

// NewEventTask constructs the task delivering event.
func NewEventTask(event alerts.Event) (*asynq.Task, error) {
	taskType, err := TaskTypeFor(event.Kind)
	if err != nil {
		return nil, err
	}
	payload := EventPayload{Key: event.Key}
	if event.Kind == alerts.EventReorder {
		req := event.Reorder
		payload.Reorder = &req
	} else {
		alert := event.Alert
		payload.Alert = &alert
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// DecodeEvent rebuilds the event carried by t.
func DecodeEvent(t *asynq.Task) (alerts.Event, error) {
	kind, err := kindFor(t.Type())
	if err != nil {
		return alerts.Event{}, err
	}
	var payload EventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return alerts.Event{}, err
	}
	if payload.Key == "" {
		return alerts.Event{}, fmt.Errorf("jobs: %s payload without key", t.Type())
	}
	event := alerts.Event{Kind: kind, Key: payload.Key}
	switch {
	case kind == alerts.EventReorder && payload.Reorder != nil:
		event.Reorder = *payload.Reorder
	case kind != alerts.EventReorder && payload.Alert != nil:
		event.Alert = *payload.Alert
	default:
		return alerts.Event{}, fmt.Errorf("jobs: %s payload missing body", t.Type())
	}
	return event, nil
}

// NewAlertSweepTask constructs the periodic sweep task.
func NewAlertSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AlertSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryAlertSweep, body, asynq.Queue(QueueDefault)), nil
}
