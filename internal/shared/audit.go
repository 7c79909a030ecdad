package shared

import (
	"context"
	"time"
)

// AuditLog is one audit trail entry. Meta is stored as JSON.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditPort records audit entries. Implementations are best effort; callers
// ignore the error so auditing never blocks a state change.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}
