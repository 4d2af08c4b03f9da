package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// wsTransport adapts one websocket connection to the session transport
// contract. Events are sent as their wire form; messages and errors use
// dedicated single-key frames so clients can tell the channels apart.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(ctx context.Context, data map[string]any) error {
	return t.write(ctx, data)
}

func (t *wsTransport) SendMessage(ctx context.Context, message string) error {
	return t.write(ctx, map[string]any{"message": message})
}

func (t *wsTransport) SendError(ctx context.Context, message string) error {
	return t.write(ctx, map[string]any{"error": message})
}

func (t *wsTransport) write(ctx context.Context, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ws.transport: marshal: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("ws.transport: write: %w", err)
	}
	return nil
}
