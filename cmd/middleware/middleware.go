package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/zlog"

	"contestbot/internal/dto"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// LoggingMiddleware logs one line per request.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := zlog.Logger.Info()
		if status >= http.StatusInternalServerError {
			ev = zlog.Logger.Error()
		} else if status >= http.StatusBadRequest {
			ev = zlog.Logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// APIKeyAuth allows a fixed set of keys in the X-API-Key header. An empty
// set rejects every request.
func APIKeyAuth(allowed map[string]struct{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if _, ok := allowed[key]; !ok || key == "" {
			dto.UnauthorizedError(c)
			return
		}
		c.Next()
	}
}
