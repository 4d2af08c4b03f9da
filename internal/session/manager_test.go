package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/llm"
	"github.com/gosuda/agentd/internal/session"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{payloads: make(map[string][][]byte)}
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[channel] = append(p.payloads[channel], payload)
	return nil
}

type fakeEventLog struct {
	mu      sync.Mutex
	entries []*domain.EventLogEntry
}

func (l *fakeEventLog) Append(_ context.Context, entry *domain.EventLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeEventLog) ListBySession(_ context.Context, sid uuid.UUID, _, _ int) ([]*domain.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.EventLogEntry
	for _, e := range l.entries {
		if e.SessionID == sid {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeEventLog) CountBySession(_ context.Context, sid uuid.UUID) (int64, error) {
	entries, _ := l.ListBySession(context.Background(), sid, 0, 0)
	return int64(len(entries)), nil
}

func newTestManager(pubsub session.Publisher, eventLog domain.EventLogRepository) *session.Manager {
	registry := agent.NewRegistry()
	registry.Register("MonologueAgent", func(_ *llm.Client) (agent.Strategy, error) {
		return parkedStrategy{}, nil
	})

	return session.NewManager(testDefaults(), registry, nil, pubsub, eventLog)
}

func TestManager_CreateGetList(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil, nil)

	s1 := m.Create(&fakeTransport{})
	s2 := m.Create(&fakeTransport{})

	got, ok := m.Get(s1.ID())
	require.True(t, ok)
	assert.Same(t, s1, got)

	_, ok = m.Get(uuid.New())
	assert.False(t, ok)

	assert.ElementsMatch(t, []*session.Session{s1, s2}, m.List())
}

func TestManager_CloseSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil, nil)
	s := m.Create(&fakeTransport{})

	m.CloseSession(context.Background(), s.ID())

	_, ok := m.Get(s.ID())
	assert.False(t, ok)

	// Closing an unknown session is a no-op.
	m.CloseSession(context.Background(), uuid.New())
}

func TestManager_CloseAll(t *testing.T) {
	t.Parallel()

	m := newTestManager(nil, nil)
	m.Create(&fakeTransport{})
	m.Create(&fakeTransport{})

	m.CloseAll(context.Background())

	assert.Empty(t, m.List())
}

func TestManager_MirrorsEvents(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	m := newTestManager(pub, nil)
	s := m.Create(&fakeTransport{})

	s.Stream().AddEvent(events.NewMessageAction("hi"), events.SourceUser)

	pub.mu.Lock()
	defer pub.mu.Unlock()

	payloads := pub.payloads[session.Channel(s.ID())]
	require.Len(t, payloads, 1)

	var mirrored map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &mirrored))
	assert.Equal(t, "message", mirrored["action"])
	assert.Equal(t, "user", mirrored["source"])
}

func TestManager_PersistsEvents(t *testing.T) {
	t.Parallel()

	eventLog := &fakeEventLog{}
	m := newTestManager(nil, eventLog)
	s := m.Create(&fakeTransport{})

	s.Stream().AddEvent(events.NewMessageAction("hi"), events.SourceUser)
	s.Stream().AddEvent(events.NewMessageAction("reply"), events.SourceAgent)

	entries, err := eventLog.ListBySession(context.Background(), s.ID(), 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Source)
	assert.Equal(t, "agent", entries[1].Source)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Payload, &wire))
	assert.Equal(t, "message", wire["action"])
}
