package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-Id"
	RequestIDKey    = "request_id"
	loggerKey       = "request_logger"

	maxRequestIDLength = 64
)

// RequestID 沿用客户端传入的 ID（过长则重新生成），并把带 request_id 的 logger 挂到请求上
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		reqLog := log.With().Str(RequestIDKey, requestID).Logger()
		c.Set(loggerKey, reqLog)
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()
	}
}

// RequestLogger 当前请求的 logger；未经过 RequestID 时返回 fallback
func RequestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}
