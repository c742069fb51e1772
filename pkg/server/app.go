package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	domrepo "MidgardPull/internal/domain/repository"
	"MidgardPull/internal/usecase"
	"MidgardPull/pkg/cache"
	"MidgardPull/pkg/config"
	xhttp "MidgardPull/pkg/http"
	applogger "MidgardPull/pkg/logger"
	pgpkg "MidgardPull/pkg/postgres"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	db          *pgpkg.Client
	scheduler   *usecase.IngestionScheduler
	httpHandler xhttp.Handler
	mirrors     []domrepo.Mirror
	cache       cache.Service

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	db *pgpkg.Client,
	scheduler *usecase.IngestionScheduler,
	httpHandler xhttp.Handler,
	mirrors []domrepo.Mirror,
	c cache.Service,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		scheduler:   scheduler,
		httpHandler: httpHandler,
		mirrors:     mirrors,
		cache:       c,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves HTTP and runs ingestion until ctx is done or the HTTP
// listener fails, then shuts everything down.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.IdleTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath),
		xhttp.WithLogger(a.logger),
	)
	mirrorNames := make([]string, 0, len(a.mirrors))
	for _, m := range a.mirrors {
		mirrorNames = append(mirrorNames, m.Name())
	}
	a.logger.Info("starting",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("metrics", a.cfg.Metrics.Enabled),
		applogger.Bool("ingestion", a.cfg.Ingestion.Enabled),
		applogger.Strings("mirrors", mirrorNames),
	)
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	var wg sync.WaitGroup
	if a.cfg.Ingestion.Enabled && a.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("ingestion stopped", applogger.Error(err))
			}
		}()
		a.logger.Info("ingestion enabled",
			applogger.String("source", a.cfg.Source.BaseURL),
			applogger.String("pool", a.cfg.Source.Pool),
			applogger.String("interval", a.cfg.Source.Interval),
		)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
		a.logger.Error("http server failed", applogger.Error(runErr))
	}

	cancel()
	wg.Wait()
	if a.scheduler != nil {
		a.logger.Info("ingestion cursor at shutdown", applogger.Int64("cursor", a.scheduler.Cursor()))
	}

	a.shutdown()
	return runErr
}

// shutdown stops HTTP first, then releases mirrors, cache and the pool.
func (a *App) shutdown() {
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	for _, m := range a.mirrors {
		if err := m.Close(); err != nil {
			a.logger.Warn("mirror close error", applogger.String("mirror", m.Name()), applogger.Error(err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}

	if a.db != nil {
		a.db.Close()
	}

	a.logger.Info("shutdown complete")
}
