package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader = "X-Request-ID"
	traceIDKey    = "traceID"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	TraceID    string    `json:"trace_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// TraceID tags each request with an id, taken from X-Request-ID when the
// caller sends one, and echoes it back.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(traceIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(traceIDKey, id)
		c.Header(traceIDHeader, id)
		c.Next()
	}
}

// GetTraceID returns the request's trace id
func GetTraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

// AbortWithError writes an ErrorResponse and stops the handler chain
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		StatusCode: status,
		Message:    message,
		TraceID:    GetTraceID(c),
		Timestamp:  time.Now().UTC(),
	})
}
