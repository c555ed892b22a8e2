// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers session endpoints under /v1/auth and the
// protected /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// logout accepts either a refresh token in the body or a bearer token
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleGuest, model.RoleStaff))
	auth.GET("/me", a.Me)
}

// Middleware applied to the public and booking routes.
type Middleware struct {
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// RegisterPublic exposes inventory browsing and the advisory availability
// check.  Availability responses are cached briefly.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler, mw Middleware) {
	g := e.Group("/v1", mw.RateLimit)
	g.GET("/units", a.ListUnits, mw.Cache)
	g.GET("/availability", a.Check, mw.Cache)
}

// RegisterReservations registers the booking saga and ledger endpoints.
// Service-level checks decide what a guest may touch; the role gate only
// admits known roles.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, jwtSecret string, mw Middleware) {
	g := e.Group("/v1/reservations",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleGuest, model.RoleStaff),
		mw.RateLimit)

	g.POST("", r.Create)
	g.GET("", r.ListMine, middleware.RequireRole(model.RoleGuest))
	g.GET("/:id/payments", r.ListPayments)
	g.POST("/:id/payments", r.AddPayment)
	g.POST("/:id/services", r.AddService, middleware.RequireRole(model.RoleStaff))
	g.PATCH("/:id/status", r.UpdateStatus)
}
