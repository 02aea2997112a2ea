package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginKey          = "logger"
)

// Middleware binds a request-scoped logger and writes one access line per
// request. The access line uses whatever logger handlers bound last, so call
// and session attributes added downstream show up on it.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	if l == nil {
		l = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		if callID := c.Query("callId"); callID != "" {
			reqLogger = reqLogger.With("call_id", callID)
		}
		Bind(c, reqLogger)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		FromGin(c).Log(c.Request.Context(), accessLevel(status, len(c.Errors) > 0), "request", attrs...)
	}
}

func accessLevel(status int, hasErrors bool) slog.Level {
	switch {
	case status >= http.StatusInternalServerError || hasErrors:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Bind makes l the request logger for both the gin and the request context.
func Bind(c *gin.Context, l *slog.Logger) {
	if l == nil {
		return
	}
	c.Set(ginKey, l)
	c.Request = c.Request.WithContext(With(c.Request.Context(), l))
}

// FromGin returns the logger bound to c, falling back to the request context
// and then slog.Default().
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return From(c.Request.Context())
}
