package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/session"
)

// SessionSummary is the read-model for a live session.
type SessionSummary struct {
	ID         uuid.UUID `json:"id" doc:"Session ID"`
	AgentState string    `json:"agent_state" doc:"Current lifecycle state, empty before INIT"`
	EventCount int       `json:"event_count" doc:"Number of events published on the session stream"`
}

// EventRecord is one published event with the source it was stamped with.
type EventRecord struct {
	Source  string          `json:"source" doc:"Event source (user or agent)"`
	Payload json.RawMessage `json:"payload" doc:"Wire-form event body"`
}

type ListSessionsOutput struct {
	Body []*SessionSummary
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body *SessionSummary
}

type ListSessionEventsInput struct {
	ID     uuid.UUID `path:"id" doc:"Session ID"`
	Limit  int       `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Max results"`
	Offset int       `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListSessionEventsOutput struct {
	Body []*EventRecord
}

type SetSessionStateInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		State string `json:"state" minLength:"1" maxLength:"50" doc:"Requested lifecycle state"`
	}
}

type SetSessionStateOutput struct {
	Body *SessionSummary
}

func summarize(s *session.Session) *SessionSummary {
	return &SessionSummary{
		ID:         s.ID(),
		AgentState: string(s.AgentState()),
		EventCount: s.Stream().Len(),
	}
}

// RegisterSessionRoutes wires the session control surface. eventLog may be
// nil, in which case event listings come from the in-memory stream.
func RegisterSessionRoutes(api huma.API, sessions SessionDirectory, eventLog domain.EventLogRepository) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List live sessions",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *struct{}) (*ListSessionsOutput, error) {
		live := sessions.List()

		out := make([]*SessionSummary, 0, len(live))
		for _, s := range live {
			out = append(out, summarize(s))
		}
		return &ListSessionsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session by ID",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}
		return &GetSessionOutput{Body: summarize(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-session-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/events",
		Summary:     "List events published on a session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *ListSessionEventsInput) (*ListSessionEventsOutput, error) {
		if eventLog != nil {
			entries, err := eventLog.ListBySession(ctx, input.ID, input.Limit, input.Offset)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list session events", err)
			}

			out := make([]*EventRecord, 0, len(entries))
			for _, e := range entries {
				out = append(out, &EventRecord{Source: e.Source, Payload: json.RawMessage(e.Payload)})
			}
			return &ListSessionEventsOutput{Body: out}, nil
		}

		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		all := s.Stream().Events()
		if input.Offset >= len(all) {
			return &ListSessionEventsOutput{Body: []*EventRecord{}}, nil
		}
		page := all[input.Offset:]
		if len(page) > input.Limit {
			page = page[:input.Limit]
		}

		out := make([]*EventRecord, 0, len(page))
		for _, ev := range page {
			data, err := json.Marshal(ev.Wire())
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to encode session event", err)
			}
			out = append(out, &EventRecord{Source: string(ev.Source()), Payload: data})
		}
		return &ListSessionEventsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-session-state",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/state",
		Summary:     "Request an agent lifecycle state change",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SetSessionStateInput) (*SetSessionStateOutput, error) {
		state := events.AgentState(input.Body.State)
		if !state.Valid() {
			return nil, huma.Error400BadRequest("unknown agent state: " + input.Body.State)
		}

		s, ok := sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}

		s.SetAgentState(ctx, state)

		return &SetSessionStateOutput{Body: summarize(s)}, nil
	})
}
