package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Logger interface for middleware logging
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// DefaultLogger discards everything
type DefaultLogger struct{}

// Info logs info messages
func (l *DefaultLogger) Info(msg string, fields ...interface{}) {}

// Error logs error messages
func (l *DefaultLogger) Error(msg string, fields ...interface{}) {}

// Debug logs debug messages
func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {}

// Warn logs warning messages
func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {}

func orDefault(logger Logger) Logger {
	if logger == nil {
		return &DefaultLogger{}
	}
	return logger
}

// GetClientIP extracts real client IP from request
func GetClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if commaIdx := strings.Index(xff, ","); commaIdx != -1 {
			return strings.TrimSpace(xff[:commaIdx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}

	return c.ClientIP()
}

// GetRequestID returns the request id, generating one if the request has none
func GetRequestID(c *gin.Context) string {
	if reqID, exists := c.Get(requestIDKey); exists {
		if id, ok := reqID.(string); ok && id != "" {
			return id
		}
	}

	reqID := c.GetHeader(RequestIDHeader)
	if reqID == "" || len(reqID) > 128 {
		reqID = uuid.New().String()
	}
	c.Set(requestIDKey, reqID)
	return reqID
}

// RequestID tags every request and response with an id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(RequestIDHeader, GetRequestID(c))
		c.Next()
	}
}
