package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/config"
	"github.com/gosuda/agentd/internal/session"
)

func newTestServer(t *testing.T, origins []string) *Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:         ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			CORSOrigins:  origins,
		},
	}

	manager := session.NewManager(config.AgentDefaults{}, agent.NewRegistry(), nil, nil, nil)

	return New(context.Background(), cfg, manager, nil, nil)
}

func preflight(srv *Server, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestCORSUsesConfiguredOrigins(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, []string{"http://app.example"})

	rec := preflight(srv, "http://app.example")
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight(srv, "http://other.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, []string{"http://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
