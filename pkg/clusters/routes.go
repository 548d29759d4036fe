package clusters

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutesWithGroup(g *echo.Group, svc *Service) {
	h := &handler{clusterService: svc}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
}
