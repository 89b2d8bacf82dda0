package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/handler"
	"github.com/iliyamo/slot-reservation/internal/middleware"
)

// RegisterOwner registers OWNER-scoped schedule endpoints under /v1/owner.
func RegisterOwner(e *echo.Echo, o *handler.OwnerHandler, jwtSecret string) {
	g := e.Group(
		"/v1/owner",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleOwner),
	)
	g.POST("/day-definitions/:id/slot-definitions", o.GenerateSlotDefinitions)
	g.POST("/schedules/:id/expand", o.ExpandDates)
}
