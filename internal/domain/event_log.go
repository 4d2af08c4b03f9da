package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventLogEntry records one published session event for replay and audit.
// Payload holds the event's wire-form JSON.
type EventLogEntry struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Source    string // "user" or "agent"
	Payload   []byte
	CreatedAt time.Time
}

// EventLogRepository stores and retrieves ordered event-log entries per session.
type EventLogRepository interface {
	Append(ctx context.Context, entry *EventLogEntry) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*EventLogEntry, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}
