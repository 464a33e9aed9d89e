package shared

import (
	"context"
	"time"
)

// AuditLog describes one recorded engine mutation.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditRecorder receives audit entries. The writer implementation is
// an external collaborator; services treat recording as best effort.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}
