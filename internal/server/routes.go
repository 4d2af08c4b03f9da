package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/agentd/internal/api/v1"
	"github.com/gosuda/agentd/internal/api/ws"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/session"
)

func registerAPIRoutes(api huma.API, manager *session.Manager, eventLog domain.EventLogRepository) {
	v1.RegisterSessionRoutes(api, manager, eventLog)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/session", hub.ServeSession)
	r.Get("/sessions/{sessionID}/watch", hub.ServeWatch)
}
