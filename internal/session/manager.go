package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/config"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/events"
)

// Publisher abstracts the pub/sub publish operation used to mirror session
// events to external watchers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Channel returns the pub/sub channel carrying a session's mirrored events.
func Channel(sid uuid.UUID) string {
	return "session:" + sid.String()
}

// Manager owns the live sessions of this process. Each session gets its own
// stream and transport; cross-session state is fully isolated.
type Manager struct {
	defaults   config.AgentDefaults
	agents     *agent.Registry
	newSandbox SandboxFactory
	pubsub     Publisher                  // nil disables the event mirror
	eventLog   domain.EventLogRepository  // nil disables persistence

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(defaults config.AgentDefaults, agents *agent.Registry, newSandbox SandboxFactory, pubsub Publisher, eventLog domain.EventLogRepository) *Manager {
	return &Manager{
		defaults:   defaults,
		agents:     agents,
		newSandbox: newSandbox,
		pubsub:     pubsub,
		eventLog:   eventLog,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// Create builds a session bound to the given transport and registers it.
// Optional observers (event mirror, durable log) are subscribed before the
// session is returned, so no published event can miss them.
func (m *Manager) Create(transport Transport) *Session {
	sid := uuid.New()

	s := New(sid, Deps{
		Transport:  transport,
		Defaults:   m.defaults,
		Agents:     m.agents,
		NewSandbox: m.newSandbox,
	})

	if m.pubsub != nil {
		s.Stream().Subscribe(m.mirror(sid))
	}
	if m.eventLog != nil {
		s.Stream().Subscribe(m.persist(sid))
	}

	m.mu.Lock()
	m.sessions[sid] = s
	m.mu.Unlock()

	log.Info().Str("session_id", sid.String()).Msg("session created")

	return s
}

// Get returns a live session by id.
func (m *Manager) Get(sid uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sid]
	return s, ok
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CloseSession tears down one session and removes it from the registry.
func (m *Manager) CloseSession(ctx context.Context, sid uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	if ok {
		delete(m.sessions, sid)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	s.Close(ctx)
	log.Info().Str("session_id", sid.String()).Msg("session closed")
}

// CloseAll tears down every live session. Used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}

// mirror republishes each event's wire form, annotated with its source, to
// the session's pub/sub channel for external watchers.
func (m *Manager) mirror(sid uuid.UUID) events.Subscriber {
	return func(ev events.Event) {
		payload := ev.Wire()
		payload["source"] = string(ev.Source())

		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("session_id", sid.String()).Msg("failed to marshal mirrored event")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := m.pubsub.Publish(ctx, Channel(sid), data); err != nil {
			log.Error().Err(err).Str("session_id", sid.String()).Msg("failed to mirror event")
		}
	}
}

// persist appends each event's wire form to the durable event log.
func (m *Manager) persist(sid uuid.UUID) events.Subscriber {
	return func(ev events.Event) {
		data, err := json.Marshal(ev.Wire())
		if err != nil {
			log.Error().Err(err).Str("session_id", sid.String()).Msg("failed to marshal event for persistence")
			return
		}

		entry := &domain.EventLogEntry{
			ID:        uuid.New(),
			SessionID: sid,
			Source:    string(ev.Source()),
			Payload:   data,
			CreatedAt: time.Now(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := m.eventLog.Append(ctx, entry); err != nil {
			log.Error().Err(err).Str("session_id", sid.String()).Msg("failed to persist event")
		}
	}
}
