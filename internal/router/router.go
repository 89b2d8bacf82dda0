// Package router registers the HTTP surface on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/handler"
	"github.com/iliyamo/slot-reservation/internal/middleware"
)

// RegisterRoutes registers unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers register and login under /v1/auth and the
// protected /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers anonymous inventory reads behind the response
// cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/v1/services/:id/slots", p.ListSlots, mw...)
	e.GET("/v1/slots/:id", p.GetSlot, mw...)
}

// RegisterWebhooks registers processor callbacks. They carry no JWT; the
// handler verifies the body signature.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payment", w.Payment)
}
