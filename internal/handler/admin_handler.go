package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/authgate/internal/database/service"
	"github.com/EgehanKilicarslan/authgate/internal/middleware"
)

// AdminHandler handles admin API requests for session management
type AdminHandler struct {
	authService service.AuthService
	userService service.UserService
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService service.AuthService, userService service.UserService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		userService: userService,
		logger:      logger,
	}
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("📋 [AdminHandler] Users listed", "count", len(users), "by", adminID(c))
	c.JSON(http.StatusOK, gin.H{
		"total_count": len(users),
		"users":       users,
	})
}

// RevokeUserTokens handles POST /admin/revoke-user-tokens/:userId
func (h *AdminHandler) RevokeUserTokens(c *gin.Context) {
	userID := c.Param("userId")
	if _, err := uuid.Parse(userID); err != nil {
		h.logger.Warn("⚠️ [AdminHandler] Invalid user ID", "user_id", userID)
		middleware.AbortWithError(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	revoked, err := h.authService.RevokeUserTokens(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("✅ [AdminHandler] User tokens revoked",
		"user_id", userID,
		"families_revoked", revoked,
		"by", adminID(c),
	)

	c.JSON(http.StatusOK, gin.H{
		"message":          "User tokens revoked",
		"user_id":          userID,
		"families_revoked": revoked,
	})
}

// RevokeFamily handles POST /admin/revoke-family/:familyId
func (h *AdminHandler) RevokeFamily(c *gin.Context) {
	familyID := c.Param("familyId")
	if _, err := uuid.Parse(familyID); err != nil {
		h.logger.Warn("⚠️ [AdminHandler] Invalid family ID", "family_id", familyID)
		middleware.AbortWithError(c, http.StatusBadRequest, "Invalid family ID")
		return
	}

	if err := h.authService.RevokeFamily(c.Request.Context(), familyID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	h.logger.Info("✅ [AdminHandler] Token family revoked", "family_id", familyID, "by", adminID(c))
	c.Status(http.StatusNoContent)
}

func adminID(c *gin.Context) string {
	if claims, ok := middleware.GetClaims(c); ok {
		return claims.Subject
	}
	return ""
}
