package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID returns the id assigned by RequestLogging, or "".
func RequestID(c echo.Context) string {
	id, _ := c.Get(ContextRequestID).(string)
	return id
}

// RequestLogging assigns every request an id, echoes it in X-Request-ID and
// logs the completed request. A caller supplied id is kept.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			c.Set(ContextRequestID, id)
			c.Response().Header().Set(HeaderRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			args := []any{
				"request_id", id,
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", c.RealIP(),
			}
			if uid := UserID(c); uid != 0 {
				args = append(args, "user_id", uid)
			}
			switch {
			case status >= http.StatusInternalServerError:
				log.Error("HTTP request completed", args...)
			case status >= http.StatusBadRequest:
				log.Warn("HTTP request completed", args...)
			default:
				log.Info("HTTP request completed", args...)
			}
			return nil
		}
	}
}

// Recovery turns a handler panic into a bare STORE_ERROR response.
func Recovery(log *logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						"request_id", RequestID(c),
						"error", fmt.Sprint(r),
						"method", c.Request().Method,
						"path", c.Request().URL.Path,
						"stack", string(debug.Stack()),
					)
					err = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error", "code": apperror.CodeStore})
				}
			}()
			return next(c)
		}
	}
}
