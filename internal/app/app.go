package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/trunov/webpbucket/internal/cache"
	"github.com/trunov/webpbucket/internal/config"
	"github.com/trunov/webpbucket/internal/metrics"
	"github.com/trunov/webpbucket/internal/objectstore"
	"github.com/trunov/webpbucket/internal/pipeline"
	"github.com/trunov/webpbucket/internal/redisholder"
	"github.com/trunov/webpbucket/internal/report"
	"github.com/trunov/webpbucket/internal/transport/handler"
	"github.com/trunov/webpbucket/internal/transport/router"
	use_case "github.com/trunov/webpbucket/internal/use-case"
	webp_converter "github.com/trunov/webpbucket/internal/webp-converter"
)

type App struct {
	HttpServer *http.Server

	shutdownTimeout time.Duration
	stopBatches     context.CancelFunc
	redis           *redisholder.Holder
}

// New builds every collaborator. Batches started over HTTP run on a context
// owned by the App and are cancelled when Run returns.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	batchCtx, stopBatches := context.WithCancel(context.WithoutCancel(ctx))

	storage, err := objectstore.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		stopBatches()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger := log.Logger.With().Str("component", "pipeline").Logger()
	conv := webp_converter.New(webp_converter.Options{
		PNGQuality:  cfg.Pipeline.PNGQuality,
		JPEGQuality: cfg.Pipeline.JPEGQuality,
		PDFDPI:      cfg.Pipeline.PDFDPI,
		MaxWidth:    cfg.Pipeline.MaxWidth,
		MaxHeight:   cfg.Pipeline.MaxHeight,
	})
	p := pipeline.New(storage, conv, pipeline.Options{
		Concurrency:    cfg.Pipeline.Concurrency,
		ConvertWorkers: cfg.Pipeline.ConvertWorkers,
		Logger:         &logger,
		Reporter:       report.Sentry{},
		Observer:       metrics.New(reg),
	})

	var (
		listingCache use_case.ListingCache
		holder       *redisholder.Holder
	)
	if cfg.Redis.Enabled() {
		holder, err = redisholder.Build(batchCtx, &cfg.Redis)
		if err != nil {
			stopBatches()
			return nil, err
		}
		listingCache = cache.NewListingCache("webp:listing", cfg.Redis.ListingTTL*time.Second, holder)
	}

	uc := use_case.New(batchCtx, p, listingCache, log.Logger)

	h := handler.New(uc)
	if holder != nil {
		h.WithDependency("redis", holder)
	}
	r := router.NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	log.Info().
		Str("bucket", cfg.Storage.BucketName).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Int("max_connections", cfg.Storage.MaxConnections).
		Bool("listing_cache", listingCache != nil).
		Msg("app initialized")

	return &App{
		HttpServer:      s,
		shutdownTimeout: cfg.Server.ShutdownTimeout * time.Second,
		stopBatches:     stopBatches,
		redis:           holder,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// cancels running batches.
func (a *App) Run(ctx context.Context) error {
	if a.redis != nil {
		defer a.redis.Close()
	}
	defer a.stopBatches()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
