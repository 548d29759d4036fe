package circuit

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutesWithGroup(g *echo.Group, breaker *Breaker) {
	h := &handler{breaker: breaker}

	g.GET("", h.list)
	g.POST("/reset", h.reset)
}
