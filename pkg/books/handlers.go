package books

import (
	"net/http"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	echologger "github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/logger"
)

type handler struct {
	bookService  *Service
	upsertEngine *UpsertEngine
}

// retrieve looks a book up by id, slug or ISBN.
func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	book, err := h.bookService.LookupBook(ctx, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, ListBooksOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Books []*models.Book `json:"books"`
		Total int            `json:"total"`
	}{books, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

// upsert accepts an aggregate from an internal producer and runs it through
// the upsert engine.
func (h *handler) upsert(c echo.Context) error {
	ctx := c.Request().Context()
	log := echologger.FromEchoContext(c)

	payload := aggregate.Aggregate{}
	if err := c.Bind(&payload); err != nil {
		return errors.WithStack(err)
	}

	result, err := h.upsertEngine.Upsert(ctx, payload)
	if err != nil {
		return errors.WithStack(err)
	}

	log.Info("book upserted", logger.Data{"book_id": result.BookID, "is_new": result.IsNew, "match": result.Match})

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	return errors.WithStack(c.JSON(status, result))
}
