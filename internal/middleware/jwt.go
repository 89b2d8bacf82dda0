package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/utils"
)

func deny(c echo.Context, e *apperror.AppError) error {
	return c.JSON(e.HTTPStatus, echo.Map{"error": e.Message, "code": e.Code})
}

// JWTAuth validates a Bearer access token and stores the numeric subject
// and role in the context. Handlers read them back with UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return deny(c, apperror.Unauthorized("missing bearer token"))
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return deny(c, apperror.Unauthorized("invalid token"))
			}
			sub, ok := claims["sub"].(float64)
			if !ok || sub <= 0 {
				return deny(c, apperror.Unauthorized("invalid subject"))
			}
			c.Set(ContextUserID, uint64(sub))
			c.Set(ContextRole, claims["role"])
			return next(c)
		}
	}
}
