package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "CoinSight/internal/domain/repository"
	"CoinSight/internal/predict"
	"CoinSight/pkg/cache"
	"CoinSight/pkg/config"
	xhttp "CoinSight/pkg/http"
	pkgkafka "CoinSight/pkg/kafka"
	applogger "CoinSight/pkg/logger"
)

// App encapsulates the application lifecycle: the HTTP facade, the
// recurring prediction scheduler, and infrastructure teardown.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	pipeline    *predict.Pipeline
	store       domrepo.MarketStore
	producer    *pkgkafka.Producer
	snapshots   cache.Service
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates an App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *predict.Pipeline,
	store domrepo.MarketStore,
	producer *pkgkafka.Producer,
	snapshots cache.Service,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		pipeline:  pipeline,
		store:     store,
		producer:  producer,
		snapshots: snapshots,
	}
}

// SetHTTPHandler allows DI to inject the HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	go a.runScheduler(ctx)
	a.l.Info("scheduler started",
		applogger.Duration("interval", a.cfg.Pipeline.Interval),
		applogger.Int("targets", len(a.cfg.Pipeline.Targets)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// runScheduler drives the recurring prediction cycle. A cycle runs to
// completion; the pipeline's own guard absorbs overlap.
func (a *App) runScheduler(ctx context.Context) {
	if a.cfg.Pipeline.RunOnStart {
		if _, err := a.pipeline.Generate(ctx); err != nil {
			a.l.Error("initial cycle failed", applogger.Error(err))
		}
	}

	ticker := time.NewTicker(a.cfg.Pipeline.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.pipeline.Generate(ctx); err != nil {
				a.l.Error("scheduled cycle failed", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops the HTTP server and closes infrastructure
// clients.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.l.Warn("snapshot cache close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.l.Warn("store close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
