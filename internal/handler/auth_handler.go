package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/authgate/internal/database/service"
	"github.com/EgehanKilicarslan/authgate/internal/middleware"
)

// AuthHandler handles HTTP requests for authentication
type AuthHandler struct {
	service service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(service service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Request/Response DTOs
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=256"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type MeResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	TokenID  string   `json:"jti"`
	IssuedAt int64    `json:"iat"`
	Expires  int64    `json:"exp"`
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ [Handler] Invalid login request", "error", err)
		middleware.AbortWithError(c, http.StatusBadRequest, "Invalid request. Username and password required.")
		return
	}

	_, tokens, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ [Handler] Invalid refresh request", "error", err)
		middleware.AbortWithError(c, http.StatusBadRequest, "Refresh token required")
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout revokes the refresh token's family and blacklists the caller's access token.
// It succeeds for unknown refresh tokens too.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ [Handler] Invalid logout request", "error", err)
		middleware.AbortWithError(c, http.StatusBadRequest, "Refresh token required")
		return
	}

	claims, _ := middleware.GetClaims(c)
	if err := h.service.Logout(c.Request.Context(), req.RefreshToken, claims); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me returns the caller's access token claims
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	resp := MeResponse{
		UserID:   claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		resp.Expires = claims.ExpiresAt.Unix()
	}

	c.JSON(http.StatusOK, resp)
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, service.ErrInvalidToken):
		middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, service.ErrTooManyAttempts):
		middleware.AbortWithError(c, http.StatusTooManyRequests, "Too many failed login attempts, try again later")
	case errors.Is(err, service.ErrUserNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, "User not found")
	default:
		logger.Error("❌ [Handler] Internal server error", "error", err, "trace_id", middleware.GetTraceID(c))
		middleware.AbortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
