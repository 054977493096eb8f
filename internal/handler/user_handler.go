package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/authgate/internal/database/service"
	"github.com/EgehanKilicarslan/authgate/internal/middleware"
)

// UserHandler serves the signed-in user's own data
type UserHandler struct {
	userService service.UserService
	logger      *slog.Logger
}

func NewUserHandler(userService service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// Profile handles GET /user/profile
func (h *UserHandler) Profile(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
