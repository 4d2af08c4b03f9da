// Package ws exposes the websocket surface: the interactive session
// endpoint and the read-only watch endpoint backed by the event mirror.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/session"
	redisstore "github.com/gosuda/agentd/internal/store/redis"
)

// Hub manages websocket connections for agent sessions.
type Hub struct {
	manager *session.Manager
	pubsub  *redisstore.PubSub // nil disables the watch endpoint
}

func NewHub(manager *session.Manager, pubsub *redisstore.PubSub) *Hub {
	return &Hub{manager: manager, pubsub: pubsub}
}

// ServeSession handles the interactive session connection. Each connection
// owns exactly one session for its lifetime; inbound frames are decoded
// requests fed to the session's dispatcher, and the session's transport
// writes back over the same connection.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	sess := h.manager.Create(newWSTransport(conn))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), session.CloseTimeout)
		defer cancel()
		h.manager.CloseSession(closeCtx, sess.ID())
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return
			}
			log.Debug().Err(err).Str("session_id", sess.ID().String()).Msg("websocket read")
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID().String()).Msg("discarding malformed frame")
			continue
		}

		// A missing or null action dispatches as "" and is rejected by
		// the session with a user-visible error.
		action, _ := payload["action"].(string)
		sess.Dispatch(ctx, action, payload)
	}
}

// ServeWatch streams a session's mirrored events to a read-only observer.
// Requires the Redis event mirror; without it the endpoint is disabled.
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request) {
	if h.pubsub == nil {
		http.Error(w, "event mirror not configured", http.StatusNotImplemented)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	messages, cleanup, err := h.pubsub.Subscribe(ctx, session.Channel(sessionID))
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
