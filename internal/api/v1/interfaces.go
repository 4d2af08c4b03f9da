package v1

import (
	"github.com/google/uuid"

	"github.com/gosuda/agentd/internal/session"
)

// SessionDirectory abstracts live-session lookup for handler testing.
// *session.Manager satisfies this interface.
type SessionDirectory interface {
	Get(sid uuid.UUID) (*session.Session, bool)
	List() []*session.Session
}
