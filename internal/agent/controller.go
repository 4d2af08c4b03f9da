package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/events"
)

// SandboxResource is the sandbox capability a controller owns. It is
// released exactly once on session teardown.
type SandboxResource interface {
	Close(ctx context.Context) error
}

// Controller drives one agent's execution loop against its session's event
// stream. It tracks the lifecycle state announced on the stream and, while
// the state is "running", repeatedly steps the strategy, publishing
// agent-sourced events until the strategy finishes, a budget is exhausted,
// or the state changes.
type Controller struct {
	sid           uuid.UUID
	stream        *events.Stream
	strategy      Strategy
	sandbox       SandboxResource
	maxIterations int
	maxChars      int

	mu    sync.Mutex
	state events.AgentState

	// wake coalesces stream notifications for the run loop. The stream
	// callback must not block, so the send is best-effort.
	wake chan struct{}

	cancel  context.CancelFunc
	done    chan struct{}
	sbOnce  sync.Once
	sbErr   error
}

// NewController subscribes to the stream and starts the run loop. The
// controller owns the sandbox from this point on.
func NewController(sid uuid.UUID, stream *events.Stream, strategy Strategy, sandbox SandboxResource, maxIterations, maxChars int) (*Controller, error) {
	if strategy == nil {
		return nil, fmt.Errorf("agent.NewController: nil strategy")
	}
	if maxIterations < 1 {
		return nil, fmt.Errorf("agent.NewController: max iterations %d out of range", maxIterations)
	}
	if maxChars < 1 {
		return nil, fmt.Errorf("agent.NewController: max chars %d out of range", maxChars)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		sid:           sid,
		stream:        stream,
		strategy:      strategy,
		sandbox:       sandbox,
		maxIterations: maxIterations,
		maxChars:      maxChars,
		state:         events.AgentStateInit,
		wake:          make(chan struct{}, 1),
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	stream.Subscribe(c.onEvent)
	go c.run(ctx)

	return c, nil
}

// AgentState returns the current lifecycle state.
func (c *Controller) AgentState() events.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestCancel issues a cooperative cancellation signal to the run loop.
// The in-flight step observes it at its own suspension points.
func (c *Controller) RequestCancel() {
	c.cancel()
}

// Done is closed when the run loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ReleaseSandbox closes the sandbox resource. Safe to call more than once;
// the close happens exactly once.
func (c *Controller) ReleaseSandbox(ctx context.Context) error {
	c.sbOnce.Do(func() {
		if c.sandbox == nil {
			return
		}
		c.sbErr = c.sandbox.Close(ctx)
	})
	return c.sbErr
}

// onEvent is the controller's stream subscription. It runs synchronously
// inside AddEvent, so it only records state and signals the run loop.
func (c *Controller) onEvent(ev events.Event) {
	if sc, ok := ev.(*events.AgentStateChanged); ok {
		c.mu.Lock()
		c.state = sc.State()
		c.mu.Unlock()
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	iterations := 0
	chars := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for c.AgentState() == events.AgentStateRunning {
			if ctx.Err() != nil {
				return
			}

			if iterations >= c.maxIterations || chars >= c.maxChars {
				log.Info().
					Str("session_id", c.sid.String()).
					Int("iterations", iterations).
					Int("chars", chars).
					Msg("agent budget exhausted")
				c.stream.AddEvent(events.NewErrorObservation("Agent reached its execution budget."), events.SourceAgent)
				c.stream.AddEvent(events.NewAgentStateChanged(events.AgentStateFinished), events.SourceAgent)
				break
			}

			ev, err := c.strategy.Step(ctx, c.stream.Events())
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Str("session_id", c.sid.String()).Msg("agent step failed")
				c.stream.AddEvent(events.NewErrorObservation(err.Error()), events.SourceAgent)
				c.stream.AddEvent(events.NewAgentStateChanged(events.AgentStateStopped), events.SourceAgent)
				break
			}
			if ev == nil {
				ev = events.NewNullAction()
			}

			// A null step means the strategy has nothing to act on yet.
			// Park in awaiting_user_input instead of spending iterations
			// on empty steps; a later running request resumes the loop.
			if _, isNull := ev.(*events.NullAction); isNull {
				c.stream.AddEvent(events.NewAgentStateChanged(events.AgentStateAwaitingUserInput), events.SourceAgent)
				break
			}

			iterations++
			chars += wireSize(ev)
			c.stream.AddEvent(ev, events.SourceAgent)

			if action, ok := ev.(*events.Action); ok && action.Name() == events.ActionTypeFinish {
				c.stream.AddEvent(events.NewAgentStateChanged(events.AgentStateFinished), events.SourceAgent)
				break
			}
		}
	}
}

func wireSize(ev events.Event) int {
	b, err := json.Marshal(ev.Wire())
	if err != nil {
		return 0
	}
	return len(b)
}
