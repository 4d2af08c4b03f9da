package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/llm"
)

func monologueWithReply(t *testing.T, reply string) agent.Strategy {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := llm.New("gpt-4o", "sk-test", srv.URL)
	require.NoError(t, err)

	strategy, err := agent.NewMonologue(client)
	require.NoError(t, err)

	return strategy
}

func userMessage(content string) events.Event {
	stream := events.NewStream()
	ev := events.NewMessageAction(content)
	stream.AddEvent(ev, events.SourceUser)
	return ev
}

func TestMonologue_Step(t *testing.T) {
	t.Parallel()

	t.Run("replies to the user as a message action", func(t *testing.T) {
		t.Parallel()

		strategy := monologueWithReply(t, "first I will list the files")

		ev, err := strategy.Step(context.Background(), []events.Event{userMessage("fix the build")})

		require.NoError(t, err)
		action, ok := ev.(*events.Action)
		require.True(t, ok)
		assert.Equal(t, events.ActionTypeMessage, action.Name())
		assert.Equal(t, "first I will list the files", action.Arg("content"))
	})

	t.Run("DONE reply finishes the run", func(t *testing.T) {
		t.Parallel()

		strategy := monologueWithReply(t, "DONE")

		ev, err := strategy.Step(context.Background(), []events.Event{userMessage("anything left?")})

		require.NoError(t, err)
		action, ok := ev.(*events.Action)
		require.True(t, ok)
		assert.Equal(t, events.ActionTypeFinish, action.Name())
	})

	t.Run("empty history yields a null action", func(t *testing.T) {
		t.Parallel()

		strategy := monologueWithReply(t, "unused")

		ev, err := strategy.Step(context.Background(), nil)

		require.NoError(t, err)
		_, isNull := ev.(*events.NullAction)
		assert.True(t, isNull)
	})

	t.Run("nil client rejected", func(t *testing.T) {
		t.Parallel()

		_, err := agent.NewMonologue(nil)

		require.Error(t, err)
	})
}
