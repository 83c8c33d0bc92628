package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/core/services"
	"pairlink/internal/infrastructure/middleware"
	"pairlink/internal/infrastructure/monitoring"
	"pairlink/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopNotifier struct{}

func (nopNotifier) PublishEvent(context.Context, domain.Identity, domain.Event) error {
	return nil
}

func (nopNotifier) PublishMedia(context.Context, domain.Identity, domain.Identity, domain.MediaChannel, []byte) error {
	return nil
}

type brokerRouterFixture struct {
	router *gin.Engine
	broker ports.BrokerService
	auth   services.AuthService
}

func newBrokerRouter(t *testing.T) *brokerRouterFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := memory.NewSessionRegistry(time.Minute, nil, nil)
	t.Cleanup(registry.Close)

	broker := services.NewBrokerService(
		registry,
		memory.NewConnectionTable(),
		memory.NewPresenceTracker(time.Minute),
		nopNotifier{},
		nil,
		zap.NewNop().Sugar(),
	)
	authService := services.NewAuthService("test-secret", time.Hour)
	handler := NewBrokerHandler(broker, monitoring.NewHealthChecker())

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	handler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	return &brokerRouterFixture{router: router, broker: broker, auth: authService}
}

func (f *brokerRouterFixture) get(t *testing.T, path string, identity domain.Identity, roles ...domain.Role) *httptest.ResponseRecorder {
	t.Helper()

	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if identity != "" {
		token, err := f.auth.GenerateToken(identity, roles)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newBrokerRouter(t)

	w := f.get(t, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestListLiveUsers_RequiresToken(t *testing.T) {
	f := newBrokerRouter(t)

	w := f.get(t, "/api/v1/live-users", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListLiveUsers_RequiresSuperuser(t *testing.T) {
	f := newBrokerRouter(t)

	w := f.get(t, "/api/v1/live-users", "alice", domain.RoleUser)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListLiveUsers_AsSuperuser(t *testing.T) {
	f := newBrokerRouter(t)
	ctx := context.Background()

	f.broker.Heartbeat(ctx, "bob")
	f.broker.Heartbeat(ctx, "carol")

	w := f.get(t, "/api/v1/live-users", "admin", domain.RoleUser, domain.RoleSuperuser)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []domain.Identity `json:"users"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []domain.Identity{"bob", "carol"}, resp.Users)
}

func TestDiagnostics_RequireSuperuser(t *testing.T) {
	f := newBrokerRouter(t)

	for _, path := range []string{"/api/v1/diagnostics/sessions", "/api/v1/diagnostics/pairings"} {
		w := f.get(t, path, "alice", domain.RoleUser)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestDiagnostics_Snapshots(t *testing.T) {
	f := newBrokerRouter(t)
	ctx := context.Background()

	_, err := f.broker.CreateSession(ctx, "alice", "1234", domain.MediaRequest{})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/diagnostics/sessions", "admin", domain.RoleSuperuser)
	require.Equal(t, http.StatusOK, w.Code)

	var sessions struct {
		Sessions map[domain.SessionCode]domain.Identity `json:"sessions"`
		Count    int                                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Equal(t, 1, sessions.Count)
	assert.Equal(t, domain.Identity("alice"), sessions.Sessions["1234"])

	w = f.get(t, "/api/v1/diagnostics/pairings", "admin", domain.RoleSuperuser)
	require.Equal(t, http.StatusOK, w.Code)

	var pairings struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pairings))
	assert.Zero(t, pairings.Count)
}
