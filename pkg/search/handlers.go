package search

import (
	"context"
	"net/http"
	"strconv"

	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type handler struct {
	orchestrator *Orchestrator
	group        singleflight.Group
}

// search runs the orchestrator and returns everything it yields. Identical
// concurrent searches share a single run.
func (h *handler) search(c echo.Context) error {
	ctx := c.Request().Context()

	params := SearchQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	hash := events.QueryHash(params.Query)
	key := hash + ":" + strconv.Itoa(params.Limit)

	// The shared run must not end when the first caller goes away.
	runCtx := context.WithoutCancel(ctx)
	v, _, _ := h.group.Do(key, func() (interface{}, error) {
		results := []*models.Book{}
		for b := range h.orchestrator.Search(runCtx, params.Query, params.Limit) {
			results = append(results, b)
		}
		return results, nil
	})
	results := v.([]*models.Book)

	return errors.WithStack(c.JSON(http.StatusOK, SearchResponse{
		QueryHash: hash,
		Results:   results,
		Total:     len(results),
	}))
}
