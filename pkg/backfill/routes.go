package backfill

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutesWithGroup(g *echo.Group, queue *Queue) {
	h := &handler{queue: queue}

	g.GET("", h.status)
	g.POST("", h.enqueue)
}
