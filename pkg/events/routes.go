package events

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutesWithGroup(g *echo.Group, hub *Hub) {
	h := &handler{hub: hub}

	g.GET("/ws", h.subscribe)
	g.GET("/stats", h.stats)
}

// SubscribeHandler serves the websocket endpoint on routes owned by other
// packages, such as search progress.
func SubscribeHandler(hub *Hub) echo.HandlerFunc {
	h := &handler{hub: hub}
	return h.subscribe
}
