package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
)

// RequireRole rejects authenticated users whose role is not listed.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return deny(c, apperror.Forbidden("forbidden"))
			}
			return next(c)
		}
	}
}
