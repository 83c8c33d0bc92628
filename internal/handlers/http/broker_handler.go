package http

import (
	"errors"
	"net/http"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/infrastructure/middleware"
	"pairlink/internal/infrastructure/monitoring"
	apperrors "pairlink/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BrokerHandler exposes the broker's read-side over HTTP: diagnostic
// snapshots for operators and the live-user listing for privileged callers.
// All mutating operations go through the signal channel, not here.
type BrokerHandler struct {
	broker ports.BrokerService
	health *monitoring.HealthChecker
}

func NewBrokerHandler(broker ports.BrokerService, health *monitoring.HealthChecker) *BrokerHandler {
	return &BrokerHandler{
		broker: broker,
		health: health,
	}
}

func (h *BrokerHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	api.Use(authMiddleware)
	{
		api.GET("/live-users", h.ListLiveUsers)

		diag := api.Group("/diagnostics")
		diag.Use(middleware.RequireRoleMiddleware(domain.RoleSuperuser))
		{
			diag.GET("/sessions", h.SessionSnapshot)
			diag.GET("/pairings", h.PairingSnapshot)
		}
	}
}

func (h *BrokerHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *BrokerHandler) ListLiveUsers(c *gin.Context) {
	caller, ok := middleware.CallerIdentity(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	users, err := h.broker.ListLiveUsers(c.Request.Context(), caller, middleware.CallerRoles(c))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.Error(apperrors.NewForbiddenError("superuser role required"))
			return
		}
		c.Error(apperrors.NewInternalError("failed to list live users"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

func (h *BrokerHandler) SessionSnapshot(c *gin.Context) {
	sessions, err := h.broker.SessionSnapshot(c.Request.Context())
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to snapshot sessions"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *BrokerHandler) PairingSnapshot(c *gin.Context) {
	pairings, err := h.broker.PairingSnapshot(c.Request.Context())
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to snapshot pairings"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pairings": pairings,
		"count":    len(pairings),
	})
}
