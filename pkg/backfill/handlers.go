package backfill

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	queue *Queue
}

type statusResponse struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
}

func (h *handler) status(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, statusResponse{
		Queued:   h.queue.Len(),
		InFlight: h.queue.InFlight(),
	}))
}

func (h *handler) enqueue(c echo.Context) error {
	params := EnqueuePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	accepted := h.queue.Enqueue(params.Source, params.SourceID, params.Priority)

	resp := struct {
		Accepted bool `json:"accepted"`
		statusResponse
	}{accepted, statusResponse{Queued: h.queue.Len(), InFlight: h.queue.InFlight()}}

	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	return errors.WithStack(c.JSON(status, resp))
}
