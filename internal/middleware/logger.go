package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		reqLog := RequestLogger(c, log)
		status := c.Writer.Status()
		event := reqLog.Info()
		if status >= 500 {
			event = reqLog.Error()
		} else if status >= 400 {
			event = reqLog.Warn()
		}

		if cc := CurrentClient(c); cc != nil {
			event = event.Str("client_id", cc.ID)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// Recovery handler panic 转为 500 JSON
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				reqLog := RequestLogger(c, log)
				reqLog.Error().
					Interface("error", r).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal_server_error",
				})
			}
		}()
		c.Next()
	}
}
