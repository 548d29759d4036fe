package main

import (
	"context"
	"net"
	"net/http"

	"github.com/canonbooks/canon/pkg/backfill"
	"github.com/canonbooks/canon/pkg/bestsellers"
	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/clusters"
	"github.com/canonbooks/canon/pkg/config"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/migrations"
	"github.com/canonbooks/canon/pkg/providers/googlebooks"
	"github.com/canonbooks/canon/pkg/providers/nytimes"
	"github.com/canonbooks/canon/pkg/providers/openlibrary"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/canonbooks/canon/pkg/search"
	"github.com/canonbooks/canon/pkg/server"
	"github.com/canonbooks/canon/pkg/version"
	"github.com/canonbooks/canon/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting canon", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	breaker, err := circuit.New(cfg.CircuitResetTimeZone)
	if err != nil {
		log.Err(err).Fatal("circuit breaker error")
	}

	hub := events.NewHub()
	locker := database.NewLocker(db)

	bookService := books.NewService(db)
	clusterService := clusters.NewService(db, locker)
	engine := books.NewUpsertEngine(db, locker, clusterService, hub)

	// Read paths and the backfill share one provider bulkhead so background
	// work can't starve searches.
	bulkhead := ratelimit.NewBulkhead("providers", cfg.ProviderBulkhead)
	providerLimiter := ratelimit.New("providers", cfg.ProviderRatePerSecond, int(cfg.ProviderBulkhead))
	backfillLimiter := ratelimit.New("backfill", cfg.BackfillRatePerSecond, cfg.BackfillBurst)

	google := googlebooks.NewClient(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey, cfg.ProviderTimeout, providerLimiter)
	library := openlibrary.NewClient(cfg.OpenLibraryBaseURL, cfg.ProviderTimeout, providerLimiter)
	nyt := nytimes.NewClient(cfg.NYTimesBaseURL, cfg.NYTimesAPIKey, cfg.ProviderTimeout, providerLimiter)
	if !google.HasAPIKey() {
		log.Warn("no google books api key configured, only the unauthenticated quota is available")
	}

	queue := backfill.NewQueue(cfg.BackfillQueueCapacity)
	coordinator := backfill.NewCoordinator(queue, backfillLimiter, bulkhead, breaker, google, library, engine, backfill.Options{})

	orchestrator := search.NewOrchestrator(
		search.NewService(db, bookService, clusterService),
		google,
		library,
		engine,
		bookService,
		breaker,
		bulkhead,
		queue,
		hub,
		search.OrchestratorOptions{
			LocalTimeout:    cfg.LocalSearchTimeout,
			ProviderTimeout: cfg.ProviderTimeout,
			BatchWindow:     cfg.SearchBatchWindow,
		},
	)

	wrkr := worker.New(cfg, db, bestsellers.NewService(db, nyt, engine, queue))

	srv, err := server.New(cfg, db, server.Dependencies{
		Engine:       engine,
		Clusters:     clusterService,
		Breaker:      breaker,
		Hub:          hub,
		Orchestrator: orchestrator,
		Backfill:     queue,
	})
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()
	runCtx, cancel := context.WithCancel(log.WithContext(ctx))
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(gctx, "tcp", srv.Addr)
		if err != nil {
			return errors.Wrap(err, "failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server stopped")
		}
		log.Info("server stopped")
		return nil
	})

	g.Go(func() error {
		return coordinator.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-graceful:
			log.Info("starting graceful shutdown")
		case <-gctx.Done():
		}

		err := srv.Shutdown(ctx)
		if err != nil {
			log.Err(err).Error("server shutdown error")
		}
		log.Info("server shutdown")

		cancel()
		return nil
	})

	wrkr.Start()
	log.Info("worker started")

	if err := g.Wait(); err != nil {
		log.Err(err).Error("run error")
	}
	log.Info("backfill coordinator shutdown", logger.Data{"queued": queue.Len()})

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
