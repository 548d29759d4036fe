package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/canonbooks/canon/pkg/backfill"
	"github.com/canonbooks/canon/pkg/binder"
	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/clusters"
	"github.com/canonbooks/canon/pkg/config"
	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/jobs"
	"github.com/canonbooks/canon/pkg/search"
	"github.com/canonbooks/canon/pkg/testutils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// Dependencies are the long-lived components shared between the HTTP API and
// the background processes.
type Dependencies struct {
	Engine       *books.UpsertEngine
	Clusters     *clusters.Service
	Breaker      *circuit.Breaker
	Hub          *events.Hub
	Orchestrator *search.Orchestrator
	Backfill     *backfill.Queue
}

func New(cfg *config.Config, db *bun.DB, deps Dependencies) (*http.Server, error) {
	e, err := newEcho(cfg, db, deps)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, deps Dependencies) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	books.RegisterRoutesWithGroup(e.Group("/books"), db, deps.Engine)
	search.RegisterRoutesWithGroup(e.Group("/search"), deps.Orchestrator, deps.Hub)
	backfill.RegisterRoutesWithGroup(e.Group("/backfill"), deps.Backfill)
	circuit.RegisterRoutesWithGroup(e.Group("/circuit"), deps.Breaker)
	clusters.RegisterRoutesWithGroup(e.Group("/clusters"), deps.Clusters)
	events.RegisterRoutesWithGroup(e.Group("/events"), deps.Hub)
	jobs.RegisterRoutesWithGroup(e.Group("/jobs"), db)

	if cfg.Environment == config.EnvironmentTest {
		testutils.RegisterRoutes(e, db, deps.Breaker)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
