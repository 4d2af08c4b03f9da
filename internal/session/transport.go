package session

import "context"

// Transport delivers events and errors to one session's client. It is
// injected at session construction so sessions can be built in isolation.
type Transport interface {
	// Send forwards an event's wire form to the client.
	Send(ctx context.Context, data map[string]any) error

	// SendMessage delivers an informational message to the client.
	SendMessage(ctx context.Context, message string) error

	// SendError delivers a human-readable error to the client's error
	// channel. Errors are not events and never enter the stream.
	SendError(ctx context.Context, message string) error
}
