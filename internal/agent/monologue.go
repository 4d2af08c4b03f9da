package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/agentd/internal/events"
	"github.com/gosuda/agentd/internal/llm"
)

const systemPrompt = "You are a software engineering agent working inside a sandboxed workspace. " +
	"Respond with the next step toward completing the user's task. " +
	"Reply with exactly DONE when the task is complete."

// Monologue is a single-threaded conversational strategy: it replays the
// session's message history to the LLM and emits the reply as a message
// action, finishing when the model declares the task done.
type Monologue struct {
	client *llm.Client
}

// NewMonologue is the Factory for the "MonologueAgent" class.
func NewMonologue(client *llm.Client) (Strategy, error) {
	if client == nil {
		return nil, fmt.Errorf("agent.NewMonologue: nil LLM client")
	}
	return &Monologue{client: client}, nil
}

func (m *Monologue) Name() string { return "MonologueAgent" }

func (m *Monologue) Step(ctx context.Context, history []events.Event) (events.Event, error) {
	messages := historyToMessages(history)

	// Nothing to respond to yet.
	if len(messages) == 1 {
		return events.NewNullAction(), nil
	}

	reply, err := m.client.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent.Monologue.Step: %w", err)
	}

	if strings.TrimSpace(reply) == "DONE" {
		return events.NewFinishAction(), nil
	}

	return events.NewMessageAction(reply), nil
}

// historyToMessages projects message actions from the event log into chat
// turns, mapping user-sourced events to the user role and agent-sourced
// events to the assistant role.
func historyToMessages(history []events.Event) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}

	for _, ev := range history {
		action, ok := ev.(*events.Action)
		if !ok || action.Name() != events.ActionTypeMessage {
			continue
		}

		role := "user"
		if ev.Source() == events.SourceAgent {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: action.Arg("content")})
	}

	return messages
}
