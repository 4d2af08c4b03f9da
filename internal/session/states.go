package session

import "github.com/gosuda/agentd/internal/events"

// validFrom maps a requested state to the states from which the transition
// is a normal, effectful one.
var validFrom = map[events.AgentState][]events.AgentState{
	events.AgentStatePaused: {events.AgentStateRunning},
	events.AgentStateRunning: {events.AgentStatePaused},
	events.AgentStateStopped: {
		events.AgentStateRunning,
		events.AgentStatePaused,
		events.AgentStateAwaitingUserInput,
	},
}

// ignoredFrom maps a requested state to the states from which the request is
// accepted but treated as already satisfied. The identical event is still
// published so subscribers observe the acknowledgment, but nothing runs
// after it.
var ignoredFrom = map[events.AgentState][]events.AgentState{
	events.AgentStatePaused: {
		events.AgentStateInit,
		events.AgentStatePaused,
		events.AgentStateStopped,
		events.AgentStateFinished,
		events.AgentStateAwaitingUserInput,
	},
	events.AgentStateRunning: {
		events.AgentStateInit,
		events.AgentStateRunning,
		events.AgentStateStopped,
		events.AgentStateFinished,
		events.AgentStateAwaitingUserInput,
	},
	events.AgentStateStopped: {
		events.AgentStateInit,
		events.AgentStateStopped,
		events.AgentStateFinished,
	},
}
