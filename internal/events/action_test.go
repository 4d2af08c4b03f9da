package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/agentd/internal/events"
)

func TestActionFromWire(t *testing.T) {
	t.Parallel()

	t.Run("run action round-trips exactly", func(t *testing.T) {
		t.Parallel()

		ev, err := events.ActionFromWire("run", map[string]any{"cmd": "ls"})

		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"action": "run",
			"args":   map[string]any{"cmd": "ls"},
		}, ev.Wire())
	})

	t.Run("unknown discriminator fails explicitly", func(t *testing.T) {
		t.Parallel()

		ev, err := events.ActionFromWire("teleport", map[string]any{})

		require.Error(t, err)
		assert.Nil(t, ev)
		assert.ErrorIs(t, err, events.ErrUnknownAction)
	})

	t.Run("run without cmd is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := events.ActionFromWire("run", map[string]any{})

		assert.ErrorIs(t, err, events.ErrInvalidArgs)
	})

	t.Run("change_agent_state validates the state", func(t *testing.T) {
		t.Parallel()

		_, err := events.ActionFromWire("change_agent_state", map[string]any{"agent_state": "sideways"})
		assert.ErrorIs(t, err, events.ErrInvalidArgs)

		ev, err := events.ActionFromWire("change_agent_state", map[string]any{"agent_state": "paused"})
		require.NoError(t, err)
		require.NotNil(t, ev)
	})

	t.Run("null discriminator yields a NullAction", func(t *testing.T) {
		t.Parallel()

		ev, err := events.ActionFromWire("null", nil)

		require.NoError(t, err)
		_, isNull := ev.(*events.NullAction)
		assert.True(t, isNull)
	})

	t.Run("nil args are tolerated", func(t *testing.T) {
		t.Parallel()

		ev, err := events.ActionFromWire("message", nil)

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"action": "message", "args": map[string]any{}}, ev.Wire())
	})

	t.Run("mutating the wire form does not touch the action", func(t *testing.T) {
		t.Parallel()

		ev, err := events.ActionFromWire("message", map[string]any{"content": "hi"})
		require.NoError(t, err)

		wire := ev.Wire()
		wire["args"].(map[string]any)["content"] = "tampered"

		assert.Equal(t, "hi", ev.Wire()["args"].(map[string]any)["content"])
	})
}

func TestActionWire_MissingDiscriminatorPanics(t *testing.T) {
	t.Parallel()

	var a events.Action

	assert.Panics(t, func() { _ = a.Wire() })
}

func TestObservationWire(t *testing.T) {
	t.Parallel()

	obs := events.NewAgentStateChanged(events.AgentStateRunning)

	assert.Equal(t, map[string]any{
		"observation": "agent_state_changed",
		"args":        map[string]any{"agent_state": "running"},
	}, obs.Wire())
	assert.Equal(t, events.AgentStateRunning, obs.State())
}

func TestAgentStateValid(t *testing.T) {
	t.Parallel()

	for _, s := range []events.AgentState{
		events.AgentStateInit,
		events.AgentStateRunning,
		events.AgentStatePaused,
		events.AgentStateStopped,
		events.AgentStateAwaitingUserInput,
		events.AgentStateFinished,
	} {
		assert.True(t, s.Valid(), string(s))
	}

	assert.False(t, events.AgentState("bogus").Valid())
	assert.False(t, events.AgentState("").Valid())
}
