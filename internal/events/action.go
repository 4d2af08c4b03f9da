package events

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// Action discriminator names accepted from clients.
const (
	ActionTypeMessage          = "message"
	ActionTypeRun              = "run"
	ActionTypeFinish           = "finish"
	ActionTypeChangeAgentState = "change_agent_state"
	ActionTypeNull             = "null"
)

// ErrUnknownAction is returned when a discriminator has no registered constructor.
var ErrUnknownAction = errors.New("events: unknown action type")

// ErrInvalidArgs is returned when an action's arguments fail validation.
var ErrInvalidArgs = errors.New("events: invalid action args")

// Action is a request event naming an operation and its arguments.
// The wire form pulls the discriminator out of the field set:
// {action: <name>, args: {...}}.
type Action struct {
	source Source
	name   string
	args   map[string]any
}

func (a *Action) Source() Source      { return a.source }
func (a *Action) setSource(s Source)  { a.source = s }
func (a *Action) Name() string        { return a.name }
func (a *Action) Args() map[string]any { return a.args }

// Arg returns the string value of an argument, or "" when absent.
func (a *Action) Arg(key string) string {
	v, _ := a.args[key].(string)
	return v
}

// Wire returns {action: <name>, args: {...}}. An action without a
// discriminator is a constructor bug upstream of this layer, not a
// recoverable condition.
func (a *Action) Wire() map[string]any {
	if a.name == "" {
		panic("events: action has no discriminator set")
	}
	args := make(map[string]any, len(a.args))
	maps.Copy(args, a.args)
	return map[string]any{"action": a.name, "args": args}
}

// NullAction represents "no operation requested". It is never forwarded
// to clients.
type NullAction struct {
	Action
}

func NewNullAction() *NullAction {
	return &NullAction{Action{name: ActionTypeNull, args: map[string]any{}}}
}

// NewMessageAction builds a conversational message action.
func NewMessageAction(content string) *Action {
	return &Action{name: ActionTypeMessage, args: map[string]any{"content": content}}
}

// NewFinishAction builds the action an agent emits when its task is done.
func NewFinishAction() *Action {
	return &Action{name: ActionTypeFinish, args: map[string]any{}}
}

// ActionConstructor builds a typed action event from raw wire args.
type ActionConstructor func(args map[string]any) (Event, error)

var (
	actionsMu sync.RWMutex
	actions   = make(map[string]ActionConstructor)
)

// RegisterAction binds a discriminator to its constructor. Registration is
// validated eagerly: an empty name or a duplicate is a wiring bug.
func RegisterAction(name string, ctor ActionConstructor) {
	actionsMu.Lock()
	defer actionsMu.Unlock()

	if name == "" || ctor == nil {
		panic("events.RegisterAction: empty action name or nil constructor")
	}
	if _, dup := actions[name]; dup {
		panic(fmt.Sprintf("events.RegisterAction: duplicate action %q", name))
	}
	actions[name] = ctor
}

// ActionFromWire constructs a typed action from a discriminator and its raw
// args. Unknown discriminators fail explicitly instead of degrading to a
// generic base action.
func ActionFromWire(name string, args map[string]any) (Event, error) {
	actionsMu.RLock()
	ctor, ok := actions[name]
	actionsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("events.ActionFromWire(%q): %w", name, ErrUnknownAction)
	}

	if args == nil {
		args = map[string]any{}
	}

	ev, err := ctor(cloneArgs(args))
	if err != nil {
		return nil, fmt.Errorf("events.ActionFromWire(%q): %w", name, err)
	}

	return ev, nil
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	maps.Copy(out, args)
	return out
}

//nolint:gochecknoinits // builtin action constructors are part of the package contract
func init() {
	RegisterAction(ActionTypeMessage, func(args map[string]any) (Event, error) {
		return &Action{name: ActionTypeMessage, args: args}, nil
	})

	RegisterAction(ActionTypeRun, func(args map[string]any) (Event, error) {
		if cmd, _ := args["cmd"].(string); cmd == "" {
			return nil, fmt.Errorf("run action requires a non-empty cmd: %w", ErrInvalidArgs)
		}
		return &Action{name: ActionTypeRun, args: args}, nil
	})

	RegisterAction(ActionTypeFinish, func(args map[string]any) (Event, error) {
		return &Action{name: ActionTypeFinish, args: args}, nil
	})

	RegisterAction(ActionTypeChangeAgentState, func(args map[string]any) (Event, error) {
		state, _ := args["agent_state"].(string)
		if !AgentState(state).Valid() {
			return nil, fmt.Errorf("unknown agent_state %q: %w", state, ErrInvalidArgs)
		}
		return &Action{name: ActionTypeChangeAgentState, args: args}, nil
	})

	RegisterAction(ActionTypeNull, func(_ map[string]any) (Event, error) {
		return NewNullAction(), nil
	})
}
