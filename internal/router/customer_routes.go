package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/handler"
	"github.com/iliyamo/slot-reservation/internal/middleware"
)

// RegisterCustomer registers customer-scoped endpoints under /v1. All
// routes require a valid JWT and the CUSTOMER role.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleCustomer),
	)
	g.PUT("/cart", h.SetCart)
	g.PATCH("/cart", h.SetCart)
	g.GET("/cart", h.GetCart)
	g.POST("/checkout", h.DoCheckout)
	g.POST("/topup", h.BeginTopup)
	g.GET("/transactions/:id/receipt", h.Receipt)
}
