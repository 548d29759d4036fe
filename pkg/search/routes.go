package search

import (
	"github.com/canonbooks/canon/pkg/events"
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers search routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, orchestrator *Orchestrator, hub *events.Hub) {
	h := &handler{
		orchestrator: orchestrator,
	}

	g.GET("", h.search)
	g.GET("/ws", events.SubscribeHandler(hub))
}
