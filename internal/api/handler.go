package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports whether the service can reach its database
type HealthHandler struct {
	db           *gorm.DB
	storeBackend string
}

func NewHealthHandler(db *gorm.DB, storeBackend string) *HealthHandler {
	return &HealthHandler{db: db, storeBackend: storeBackend}
}

// Health: GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "ok"
	status := http.StatusOK

	// Simple check to prevent panic if db is nil (e.g., in handler tests)
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	body := gin.H{
		"status":   "ok",
		"database": database,
		"store":    h.storeBackend,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
