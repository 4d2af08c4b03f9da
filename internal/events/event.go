package events

// Source tags who published an event.
type Source string

const (
	SourceUser  Source = "user"
	SourceAgent Source = "agent"
)

// AgentState is the lifecycle phase of a running agent.
type AgentState string

const (
	AgentStateInit              AgentState = "init"
	AgentStateRunning           AgentState = "running"
	AgentStatePaused            AgentState = "paused"
	AgentStateStopped           AgentState = "stopped"
	AgentStateAwaitingUserInput AgentState = "awaiting_user_input"
	AgentStateFinished          AgentState = "finished"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateInit, AgentStateRunning, AgentStatePaused,
		AgentStateStopped, AgentStateAwaitingUserInput, AgentStateFinished:
		return true
	}
	return false
}

// Event is a published Action or Observation. Events are immutable once
// published; the source tag is stamped exactly once by the stream.
type Event interface {
	// Source returns who published the event ("user" or "agent").
	Source() Source

	// Wire returns the canonical wire form of the event:
	// {action|observation: <name>, args: {...}}.
	Wire() map[string]any

	// setSource is called by the stream on publish. Unexported so event
	// types can only be defined in this package, keeping the wire-shape
	// contract in one place.
	setSource(Source)
}
