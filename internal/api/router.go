package api

import (
	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/authgate/internal/database/models"
	"github.com/EgehanKilicarslan/authgate/internal/handler"
	"github.com/EgehanKilicarslan/authgate/internal/middleware"
)

func SetupRouter(
	allowedOrigins []string,
	healthHandler *HealthHandler,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.TraceID(), middleware.CORS(allowedOrigins))
	r.SetTrustedProxies(nil)

	// Public routes
	r.GET("/api/v1/health", healthHandler.Health)

	// Auth routes (Public)
	authGroup := r.Group("/api/v1/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Auth routes (Protected)
	sessionGroup := r.Group("/api/v1/auth")
	sessionGroup.Use(authMiddleware.RequireAuth())
	{
		sessionGroup.POST("/logout", authHandler.Logout)
		sessionGroup.GET("/me", authHandler.Me)
	}

	userGroup := r.Group("/api/v1/user")
	userGroup.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(models.RoleUser, models.RoleAdmin))
	{
		userGroup.GET("/profile", userHandler.Profile)
	}

	adminGroup := r.Group("/api/v1/admin")
	adminGroup.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(models.RoleAdmin))
	{
		adminGroup.GET("/users", adminHandler.ListUsers)
		adminGroup.POST("/revoke-user-tokens/:userId", adminHandler.RevokeUserTokens)
		adminGroup.POST("/revoke-family/:familyId", adminHandler.RevokeFamily)
	}

	return r
}
