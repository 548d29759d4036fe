package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, engine *UpsertEngine) {
	h := &handler{
		bookService:  NewService(db),
		upsertEngine: engine,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("", h.upsert)
}
