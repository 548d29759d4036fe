package circuit

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	breaker *Breaker
}

func (h *handler) list(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.breaker.States()))
}

// reset closes one rail, or both when no rail is given.
func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()

	c.Set("disallow_empty_body", false)
	params := ResetPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if params.Rail == nil {
		h.breaker.ResetAll(ctx)
	} else {
		// Already validated by the binder.
		r, _ := ParseRail(*params.Rail)
		h.breaker.Reset(ctx, r)
	}

	return errors.WithStack(c.JSON(http.StatusOK, h.breaker.States()))
}
