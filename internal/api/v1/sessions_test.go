package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/agentd/internal/api/v1"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/session"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// nullTransport satisfies session.Transport for sessions that only need to
// exist, not talk back.
type nullTransport struct {
	mu     sync.Mutex
	errors []string
}

func (t *nullTransport) Send(context.Context, map[string]any) error { return nil }

func (t *nullTransport) SendMessage(context.Context, string) error { return nil }

func (t *nullTransport) SendError(_ context.Context, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, message)
	return nil
}

type fakeDirectory struct {
	sessions map[uuid.UUID]*session.Session
}

func (d *fakeDirectory) Get(sid uuid.UUID) (*session.Session, bool) {
	s, ok := d.sessions[sid]
	return s, ok
}

func (d *fakeDirectory) List() []*session.Session {
	out := make([]*session.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

// fakeEventLog serves canned entries for the durable-listing path.
type fakeEventLog struct {
	entries []*domain.EventLogEntry
}

func (f *fakeEventLog) Append(_ context.Context, entry *domain.EventLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeEventLog) ListBySession(_ context.Context, sessionID uuid.UUID, limit, offset int) ([]*domain.EventLogEntry, error) {
	var matched []*domain.EventLogEntry
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			matched = append(matched, e)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeEventLog) CountBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func newTestSession(t *testing.T) (*session.Session, *nullTransport) {
	t.Helper()

	transport := &nullTransport{}
	s := session.New(uuid.New(), session.Deps{Transport: transport})
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, transport
}

func newSessionTestAPI(t *testing.T, dir *fakeDirectory, eventLog domain.EventLogRepository) humatest.TestAPI {
	t.Helper()

	_, api := humatest.New(t)
	v1.RegisterSessionRoutes(api, dir, eventLog)
	return api
}

// ---------------------------------------------------------------------------
// list / get
// ---------------------------------------------------------------------------

func TestListSessions(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		api := newSessionTestAPI(t, &fakeDirectory{sessions: map[uuid.UUID]*session.Session{}}, nil)

		resp := api.Get("/sessions")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Empty(t, body)
	})

	t.Run("returns summaries", func(t *testing.T) {
		t.Parallel()

		s1, _ := newTestSession(t)
		s2, _ := newTestSession(t)
		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{
			s1.ID(): s1,
			s2.ID(): s2,
		}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Get("/sessions")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		require.Len(t, body, 2)

		ids := []string{body[0]["id"].(string), body[1]["id"].(string)}
		assert.ElementsMatch(t, []string{s1.ID().String(), s2.ID().String()}, ids)
	})
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		api := newSessionTestAPI(t, &fakeDirectory{sessions: map[uuid.UUID]*session.Session{}}, nil)

		resp := api.Get("/sessions/" + uuid.NewString())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestSession(t)
		s.Stream().AddEvent(events.NewMessageAction("hello"), events.SourceUser)

		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{s.ID(): s}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Get("/sessions/" + s.ID().String())
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, s.ID().String(), body["id"])
		assert.Equal(t, "", body["agent_state"])
		assert.EqualValues(t, 1, body["event_count"])
	})
}

// ---------------------------------------------------------------------------
// event listing
// ---------------------------------------------------------------------------

func TestListSessionEvents(t *testing.T) {
	t.Parallel()

	t.Run("in-memory snapshot", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestSession(t)
		s.Stream().AddEvent(events.NewMessageAction("first"), events.SourceUser)
		s.Stream().AddEvent(events.NewMessageAction("second"), events.SourceAgent)

		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{s.ID(): s}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Get("/sessions/" + s.ID().String() + "/events")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []struct {
			Source  string         `json:"source"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		require.Len(t, body, 2)

		assert.Equal(t, "user", body[0].Source)
		assert.Equal(t, "message", body[0].Payload["action"])
		assert.Equal(t, "agent", body[1].Source)
	})

	t.Run("in-memory offset past end", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestSession(t)
		s.Stream().AddEvent(events.NewMessageAction("only"), events.SourceUser)

		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{s.ID(): s}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Get("/sessions/" + s.ID().String() + "/events?offset=5")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []any
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Empty(t, body)
	})

	t.Run("in-memory unknown session", func(t *testing.T) {
		t.Parallel()

		api := newSessionTestAPI(t, &fakeDirectory{sessions: map[uuid.UUID]*session.Session{}}, nil)

		resp := api.Get("/sessions/" + uuid.NewString() + "/events")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("durable log preferred when configured", func(t *testing.T) {
		t.Parallel()

		sid := uuid.New()
		eventLog := &fakeEventLog{entries: []*domain.EventLogEntry{
			{
				ID:        uuid.New(),
				SessionID: sid,
				Source:    "user",
				Payload:   []byte(`{"action":"run","args":{"cmd":"ls"}}`),
				CreatedAt: time.Now(),
			},
		}}

		// Directory is empty on purpose: the durable path must not require
		// a live session.
		api := newSessionTestAPI(t, &fakeDirectory{sessions: map[uuid.UUID]*session.Session{}}, eventLog)

		resp := api.Get("/sessions/" + sid.String() + "/events")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []struct {
			Source  string         `json:"source"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		require.Len(t, body, 1)
		assert.Equal(t, "user", body[0].Source)
		assert.Equal(t, "run", body[0].Payload["action"])
	})
}

// ---------------------------------------------------------------------------
// state changes
// ---------------------------------------------------------------------------

func TestSetSessionState(t *testing.T) {
	t.Parallel()

	t.Run("unknown state rejected", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestSession(t)
		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{s.ID(): s}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Post("/sessions/"+s.ID().String()+"/state", map[string]any{"state": "bogus"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		api := newSessionTestAPI(t, &fakeDirectory{sessions: map[uuid.UUID]*session.Session{}}, nil)

		resp := api.Post("/sessions/"+uuid.NewString()+"/state", map[string]any{"state": "stopped"})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("delegates to session", func(t *testing.T) {
		t.Parallel()

		s, transport := newTestSession(t)
		dir := &fakeDirectory{sessions: map[uuid.UUID]*session.Session{s.ID(): s}}
		api := newSessionTestAPI(t, dir, nil)

		resp := api.Post("/sessions/"+s.ID().String()+"/state", map[string]any{"state": "stopped"})
		require.Equal(t, http.StatusOK, resp.Code)

		// No controller exists, so the session reports the failure over its
		// own transport rather than through the HTTP response.
		transport.mu.Lock()
		defer transport.mu.Unlock()
		assert.Equal(t, []string{"No agent started."}, transport.errors)
	})
}
