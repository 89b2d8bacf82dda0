package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(c echo.Context) uint64 {
	switch v := c.Get(ContextUserID).(type) {
	case uint64:
		return v
	case float64:
		if v > 0 {
			return uint64(v)
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ContextRole).(string)
	return r
}

// identityKey is the user part of rate limit keys.
func identityKey(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
