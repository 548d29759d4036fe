package testutils

import (
	"context"
	"net/http"

	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// catalogTables are cleared children first so foreign keys hold at every step.
var catalogTables = []string{
	"bestseller_list_entries",
	"work_cluster_members",
	"work_clusters",
	"book_dimensions",
	"book_image_links",
	"book_external_ids",
	"book_categories",
	"categories",
	"book_authors",
	"authors",
	"books",
	"jobs",
}

type handler struct {
	db      *bun.DB
	breaker *circuit.Breaker
}

type deleteCatalogResponse struct {
	Deleted map[string]int64 `json:"deleted"`
}

// deleteCatalog removes every book, author, cluster and job.
// DELETE /test/catalog.
func (h *handler) deleteCatalog(c echo.Context) error {
	ctx := c.Request().Context()

	resp := deleteCatalogResponse{Deleted: make(map[string]int64, len(catalogTables))}
	err := h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, table := range catalogTables {
			res, err := tx.NewDelete().TableExpr(table).Where("1 = 1").Exec(ctx)
			if err != nil {
				return errors.Wrapf(err, "failed to clear %s", table)
			}
			n, _ := res.RowsAffected()
			resp.Deleted[table] = n
		}
		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

// tripRail opens a breaker rail as if the provider had reported a quota
// error, so clients can exercise the fallback paths.
// POST /test/circuit/:rail/trip.
func (h *handler) tripRail(c echo.Context) error {
	rail, ok := circuit.ParseRail(c.Param("rail"))
	if !ok {
		return errcodes.NotFound("Rail")
	}

	h.breaker.RecordFailure(rail, true)

	return errors.WithStack(c.JSON(http.StatusOK, h.breaker.States()))
}
