package events

import "maps"

// Observation discriminator names.
const (
	ObservationTypeNull              = "null"
	ObservationTypeError             = "error"
	ObservationTypeAgentStateChanged = "agent_state_changed"
)

// Observation is an event representing the result of executing an Action.
// Wire form: {observation: <name>, args: {...}}.
type Observation struct {
	source Source
	name   string
	args   map[string]any
}

func (o *Observation) Source() Source       { return o.source }
func (o *Observation) setSource(s Source)   { o.source = s }
func (o *Observation) Name() string         { return o.name }
func (o *Observation) Args() map[string]any { return o.args }

func (o *Observation) Wire() map[string]any {
	if o.name == "" {
		panic("events: observation has no discriminator set")
	}
	args := make(map[string]any, len(o.args))
	maps.Copy(args, o.args)
	return map[string]any{"observation": o.name, "args": args}
}

// NullObservation is the default outcome of an unimplemented or no-op
// action. It is never forwarded to clients.
type NullObservation struct {
	Observation
}

func NewNullObservation(content string) *NullObservation {
	return &NullObservation{Observation{
		name: ObservationTypeNull,
		args: map[string]any{"content": content},
	}}
}

// NewErrorObservation records a failure during agent execution.
func NewErrorObservation(message string) *Observation {
	return &Observation{
		name: ObservationTypeError,
		args: map[string]any{"message": message},
	}
}

// AgentStateChanged announces a lifecycle transition on the stream.
type AgentStateChanged struct {
	Observation
}

func NewAgentStateChanged(state AgentState) *AgentStateChanged {
	return &AgentStateChanged{Observation{
		name: ObservationTypeAgentStateChanged,
		args: map[string]any{"agent_state": string(state)},
	}}
}

// State returns the announced lifecycle state.
func (o *AgentStateChanged) State() AgentState {
	s, _ := o.args["agent_state"].(string)
	return AgentState(s)
}
