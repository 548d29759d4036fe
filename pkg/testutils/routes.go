// Package testutils provides test-only API endpoints for end-to-end runs.
// These routes are only registered when the environment is "test".
package testutils

import (
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers test-only routes.
// These endpoints should ONLY be registered in test environments.
func RegisterRoutes(e *echo.Echo, db *bun.DB, breaker *circuit.Breaker) {
	h := &handler{db: db, breaker: breaker}

	test := e.Group("/test")
	test.DELETE("/catalog", h.deleteCatalog)
	test.POST("/circuit/:rail/trip", h.tripRail)
}
