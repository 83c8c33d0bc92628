package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/services"
	"pairlink/pkg/errors"
	"pairlink/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues broker tokens. There is no user store: callers prove
// themselves with the shared provision key and receive a signed token for
// the identity they claim.
type AuthHandler struct {
	authService  services.AuthService
	provisionKey string
	tokenTTL     time.Duration
}

func NewAuthHandler(authService services.AuthService, provisionKey string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		provisionKey: provisionKey,
		tokenTTL:     tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type IssueTokenRequest struct {
	Identity string   `json:"identity" binding:"required,max=128"`
	Roles    []string `json:"roles" binding:"omitempty,max=4"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	key := c.GetHeader("X-Provision-Key")
	if h.provisionKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.provisionKey)) != 1 {
		c.Error(errors.NewUnauthorizedError("invalid provision key"))
		return
	}

	var req IssueTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Identity = strings.TrimSpace(req.Identity)
	if err := validation.ValidateIdentity(req.Identity); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	roles := []domain.Role{domain.RoleUser}
	for _, r := range req.Roles {
		switch domain.Role(r) {
		case domain.RoleUser:
			// always present
		case domain.RoleSuperuser:
			roles = append(roles, domain.RoleSuperuser)
		default:
			c.Error(errors.NewInvalidInputError("unknown role: " + r))
			return
		}
	}

	token, err := h.authService.GenerateToken(domain.Identity(req.Identity), roles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity":   req.Identity,
		"roles":      roles,
		"token":      token,
		"expires_in": int(h.tokenTTL / time.Second),
	})
}
