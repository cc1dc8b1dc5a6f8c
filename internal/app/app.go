package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"dataresource/internal/config"
	"dataresource/internal/loader/schemes"
	"dataresource/internal/metrics"
	"dataresource/internal/resource"
	"dataresource/internal/service"
	"dataresource/internal/storage"
)

// App owns the process-wide pieces the commands share: configuration, the
// HTTP loader settings, metrics and the catalog database.
type App struct {
	cfg *config.Config

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server

	// Opened on first use; most commands never touch the catalog.
	catalogOnce sync.Once
	catalogErr  error
	db          *storage.DB
	catalog     *service.CatalogService
	emitter     service.EventEmitter
}

// New creates a new App.
func New(cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &App{cfg: cfg, emitter: service.LogEmitter{}}
}

func (a *App) Config() *config.Config { return a.cfg }

// Startup applies the configuration to the shared loaders and installs the
// metrics observer. When metrics.addr is set, /metrics is served until
// Shutdown.
func (a *App) Startup(ctx context.Context) error {
	schemes.ConfigureHTTP(schemes.HTTPOptions{
		Timeout:  a.cfg.HTTPTimeout(),
		CacheTTL: a.cfg.CacheTTL(),
	})

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	resource.SetObserver(a.metrics)

	if a.cfg.Metrics.Addr != "" {
		a.metricsSrv = metrics.NewServer(a.cfg.Metrics.Addr, a.registry)
		go func() {
			if err := a.metricsSrv.Start(); err != nil {
				log.Error().Err(err).Msg("app: metrics server stopped")
			}
		}()
	}
	return nil
}

// Catalog opens the catalog database on first call.
func (a *App) Catalog() (*service.CatalogService, error) {
	a.catalogOnce.Do(func() {
		if a.cfg.Catalog.Path == "" {
			a.catalogErr = errors.New("catalog.path is not configured")
			return
		}
		db, err := storage.New(a.cfg.Catalog.Path)
		if err != nil {
			a.catalogErr = fmt.Errorf("open catalog: %w", err)
			return
		}
		a.db = db
		a.catalog = service.NewCatalogService(storage.NewCatalogStore(db), a.emitter, service.Options{
			Trusted: a.cfg.Trusted,
		})
		log.Debug().Str("path", a.cfg.Catalog.Path).Msg("app: catalog opened")
	})
	return a.catalog, a.catalogErr
}

// Shutdown waits briefly for running refreshes, then closes everything.
func (a *App) Shutdown(ctx context.Context) {
	if a.catalog != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.catalog.WaitRunning(waitCtx)
		cancel()
		a.catalog.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("app: metrics shutdown")
		}
	}
	resource.SetObserver(nil)
}
