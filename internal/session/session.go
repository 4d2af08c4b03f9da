// Package session implements the per-session control layer: each client
// session owns an event stream, gates lifecycle transitions for its agent
// controller through an explicit state machine, converts inbound requests
// into typed events, and filters agent events back to the client transport.
package session

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/config"
	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/llm"
)

// ActionTypeInit is the top-level request name that bootstraps a controller.
// It is dispatched directly, never published as an event.
const ActionTypeInit = "initialize"

const bootstrapErrMsg = "Error creating controller. Please check the sandbox runtime is available " +
	"and see the troubleshooting guide for more debugging information."

const sendTimeout = 5 * time.Second

// CloseTimeout bounds teardown work (sandbox release) per session.
const CloseTimeout = 10 * time.Second

// SandboxFactory creates the sandbox resource handed to a new controller.
// May be nil, in which case controllers run without a sandbox.
type SandboxFactory func(ctx context.Context, sid uuid.UUID) (agent.SandboxResource, error)

// Deps are the collaborators a session needs. Everything is injected so
// sessions can be constructed in isolation.
type Deps struct {
	Transport  Transport
	Defaults   config.AgentDefaults
	Agents     *agent.Registry
	NewSandbox SandboxFactory
}

// Session owns exactly one event stream, created here and never replaced,
// and at most one live controller, created lazily on an INIT request.
type Session struct {
	id     uuid.UUID
	stream *events.Stream
	deps   Deps

	mu         sync.Mutex
	controller *agent.Controller
	closed     bool
}

// New creates a session and subscribes it to its own stream for outbound
// filtering.
func New(id uuid.UUID, deps Deps) *Session {
	s := &Session{
		id:     id,
		stream: events.NewStream(),
		deps:   deps,
	}
	s.stream.Subscribe(s.onEvent)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Stream returns the session's event stream. Callers may subscribe
// additional observers (mirrors, persistence); the stream itself is never
// replaced.
func (s *Session) Stream() *events.Stream { return s.stream }

// Controller returns the live controller, or nil before a successful INIT.
func (s *Session) Controller() *agent.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// AgentState returns the controller's lifecycle state, or "" when no
// controller exists.
func (s *Session) AgentState() events.AgentState {
	ctrl := s.Controller()
	if ctrl == nil {
		return ""
	}
	return ctrl.AgentState()
}

// Dispatch is the entry point for inbound client requests. data carries the
// decoded request body; its "args" entry feeds action construction.
func (s *Session) Dispatch(ctx context.Context, action string, data map[string]any) {
	log.Debug().Str("session_id", s.id.String()).Str("action", action).Msg("dispatching action")

	if action == "" {
		s.sendError(ctx, "Invalid action")
		return
	}

	if action == ActionTypeInit {
		s.createController(ctx, data)
		return
	}

	args, _ := data["args"].(map[string]any)
	ev, err := events.ActionFromWire(action, args)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id.String()).Msg("rejecting inbound action")
		s.sendError(ctx, fmt.Sprintf("Unrecognized action: %s", action))
		return
	}

	s.stream.AddEvent(ev, events.SourceUser)

	// Lifecycle requests flow into the state machine; the published action
	// is the audit record, the transition happens here.
	if act, ok := ev.(*events.Action); ok && act.Name() == events.ActionTypeChangeAgentState {
		s.SetAgentState(ctx, events.AgentState(act.Arg("agent_state")))
	}
}

// createController bootstraps the controller from an INIT request. Each
// argument falls back to the process-wide default when absent or empty; the
// LLM base URL is never taken from the request.
func (s *Session) createController(ctx context.Context, data map[string]any) {
	if s.Controller() != nil {
		// One controller per session; recreation is not supported.
		s.sendError(ctx, "Agent already started")
		return
	}

	args := requestArgs(data)

	agentCls := argOrDefault(args, "agent", s.deps.Defaults.Agent)
	model := argOrDefault(args, "model", s.deps.Defaults.Model)
	apiKey := argOrDefault(args, "api_key", s.deps.Defaults.APIKey)
	baseURL := s.deps.Defaults.BaseURL

	maxIterations, err := intArgOrDefault(args, "max_iterations", s.deps.Defaults.MaxIterations)
	if err != nil {
		s.bootstrapFailed(ctx, err)
		return
	}

	maxChars, err := intArgOrDefault(args, "max_chars", s.deps.Defaults.MaxChars)
	if err != nil {
		s.bootstrapFailed(ctx, err)
		return
	}

	log.Info().
		Str("session_id", s.id.String()).
		Str("agent", agentCls).
		Str("model", model).
		Msg("creating agent controller")

	client, err := llm.New(model, apiKey, baseURL)
	if err != nil {
		s.bootstrapFailed(ctx, err)
		return
	}

	strategy, err := s.deps.Agents.Create(agentCls, client)
	if err != nil {
		s.bootstrapFailed(ctx, err)
		return
	}

	var sb agent.SandboxResource
	if s.deps.NewSandbox != nil {
		sb, err = s.deps.NewSandbox(ctx, s.id)
		if err != nil {
			s.bootstrapFailed(ctx, err)
			return
		}
	}

	ctrl, err := agent.NewController(s.id, s.stream, strategy, sb, maxIterations, maxChars)
	if err != nil {
		if sb != nil {
			if closeErr := sb.Close(ctx); closeErr != nil {
				log.Error().Err(closeErr).Str("session_id", s.id.String()).Msg("failed to release sandbox after bootstrap failure")
			}
		}
		s.bootstrapFailed(ctx, err)
		return
	}

	s.mu.Lock()
	s.controller = ctrl
	s.mu.Unlock()

	s.initDone(ctx)
}

// bootstrapFailed logs the failure and reports a user-facing hint. The
// session is left without a controller and remains dispatch-capable, so the
// client may retry with another INIT request.
func (s *Session) bootstrapFailed(ctx context.Context, err error) {
	log.Error().Err(err).Str("session_id", s.id.String()).Msg("error creating controller")
	s.sendError(ctx, bootstrapErrMsg)
}

func (s *Session) initDone(ctx context.Context) {
	if s.Controller() == nil {
		s.sendError(ctx, "No agent started.")
		return
	}
	s.stream.AddEvent(events.NewAgentStateChanged(events.AgentStateInit), events.SourceUser)
}

// SetAgentState requests a lifecycle transition. The transition tables
// classify (current, requested): a valid pair publishes the state-changed
// event; an ignored pair publishes the identical event as an idempotent
// acknowledgment and stops; anything else is an error.
func (s *Session) SetAgentState(ctx context.Context, newState events.AgentState) {
	ctrl := s.Controller()
	if ctrl == nil {
		s.sendError(ctx, "No agent started.")
		return
	}

	cur := ctrl.AgentState()

	switch {
	case slices.Contains(validFrom[newState], cur):
		s.stream.AddEvent(events.NewAgentStateChanged(newState), events.SourceUser)
	case slices.Contains(ignoredFrom[newState], cur):
		s.stream.AddEvent(events.NewAgentStateChanged(newState), events.SourceUser)
		return
	default:
		s.sendError(ctx, "Current task state not recognized.")
		return
	}
}

// onEvent is the session's own stream subscription: it suppresses null
// events and forwards agent-sourced events to the client. User-sourced
// events are never echoed back.
func (s *Session) onEvent(ev events.Event) {
	switch ev.(type) {
	case *events.NullAction, *events.NullObservation:
		return
	}

	if ev.Source() != events.SourceAgent {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := s.deps.Transport.Send(ctx, ev.Wire()); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to forward event to client")
	}
}

// Close tears the session down: it requests cooperative cancellation of the
// in-flight agent task and releases the sandbox resource exactly once.
// Closing a session that never started an agent is a no-op.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ctrl := s.controller
	s.mu.Unlock()

	if ctrl == nil {
		return
	}

	ctrl.RequestCancel()

	if err := ctrl.ReleaseSandbox(ctx); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to release sandbox")
	}
}

func (s *Session) sendError(ctx context.Context, message string) {
	if err := s.deps.Transport.SendError(ctx, message); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to send error to client")
	}
}

// requestArgs extracts the INIT request's args, dropping entries whose value
// is the empty string (clients send those for "not provided").
func requestArgs(data map[string]any) map[string]any {
	raw, _ := data["args"].(map[string]any)

	args := make(map[string]any, len(raw))
	for key, value := range raw {
		if str, ok := value.(string); ok && str == "" {
			continue
		}
		args[key] = value
	}
	return args
}

func argOrDefault(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intArgOrDefault(args map[string]any, key string, fallback int) (int, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("session: parsing %s=%q: %w", key, n, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("session: %s has unsupported type %T", key, v)
	}
}
