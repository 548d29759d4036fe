package clusters

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	clusterService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	cluster, err := h.clusterService.RetrieveCluster(ctx, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, cluster))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListClustersQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	clusters, err := h.clusterService.ListClusters(ctx, ListClustersOptions{
		BookID: params.BookID,
		Method: params.Method,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, clusters))
}
