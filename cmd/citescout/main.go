// Package main wires together the citescout service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/api"
	"github.com/citescout/citescout/internal/clock/system"
	"github.com/citescout/citescout/internal/config"
	"github.com/citescout/citescout/internal/dispatcher"
	"github.com/citescout/citescout/internal/id/uuid"
	"github.com/citescout/citescout/internal/logging"
	"github.com/citescout/citescout/internal/pdffinder"
	"github.com/citescout/citescout/internal/progress"
	"github.com/citescout/citescout/internal/progress/sinks"
	memorypublisher "github.com/citescout/citescout/internal/publisher/memory"
	pubsubpublisher "github.com/citescout/citescout/internal/publisher/pubsub"
	queuememory "github.com/citescout/citescout/internal/queue/memory"
	"github.com/citescout/citescout/internal/render"
	"github.com/citescout/citescout/internal/resilience"
	"github.com/citescout/citescout/internal/scholar"
	"github.com/citescout/citescout/internal/scrape"
	"github.com/citescout/citescout/internal/semscholar"
	gcsstorage "github.com/citescout/citescout/internal/storage/gcs"
	localstorage "github.com/citescout/citescout/internal/storage/local"
	memorystorage "github.com/citescout/citescout/internal/storage/memory"
	postgresstorage "github.com/citescout/citescout/internal/storage/postgres"
	"github.com/citescout/citescout/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var jobStore scholar.JobStore
	if cfg.DB.Enabled {
		pgStore, err := postgresstorage.NewJobStore(ctx, postgresstorage.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		}, clock)
		if err != nil {
			logger.Fatal("postgres job store init failed", zap.Error(err))
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema init failed", zap.Error(err))
		}
		defer pgStore.Close()
		jobStore = pgStore
	} else {
		jobStore = memorystorage.NewJobStore(clock)
	}

	var blobStore scholar.BlobStore
	var artifacts api.ArtifactReader
	switch cfg.Storage.Backend {
	case "local":
		localStore, err := localstorage.New(cfg.Storage.LocalDir)
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
		blobStore = localStore
		artifacts = localStore
	case "gcs":
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		gcsStore, err := gcsstorage.New(gcsClient, cfg.Storage.GCSBucket)
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
		blobStore = gcsStore
	default:
		memStore := memorystorage.NewBlobStore()
		blobStore = memStore
		artifacts = memStore
	}

	var publisher scholar.Publisher
	if cfg.PubSub.Enabled {
		gcpPublisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcpPublisher.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = gcpPublisher
	} else {
		publisher = memorypublisher.New()
	}

	var finder scholar.PDFFinder = pdffinder.Noop{}
	if cfg.PDFFinder.Enabled {
		chrome, err := pdffinder.NewChromedp(pdffinder.Config{
			MaxParallel:       cfg.PDFFinder.MaxParallel,
			NavigationTimeout: time.Duration(cfg.PDFFinder.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("pdf finder init failed", zap.Error(err))
		} else {
			defer chrome.Close()
			finder = chrome
		}
	}

	policy := scholar.NewExponentialRetryPolicy(
		cfg.Upstream.MaxRetries,
		time.Duration(cfg.Upstream.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Upstream.BackoffMaxMs)*time.Millisecond,
	)
	cache := resilience.NewCache(cfg.CacheTTL(), cfg.CacheMaxStale(), clock)
	res := resilience.NewClient(policy, cache, logger.Named("resilience"))
	source := semscholar.New(semscholar.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Timeout:       cfg.UpstreamTimeout(),
		RatePerSecond: cfg.Upstream.RatePerSecond,
		RateBurst:     cfg.Upstream.RateBurst,
	}, res, logger.Named("semscholar"))

	resolver := scrape.NewResolver(source, cfg.Scrape.SearchLimit, logger.Named("resolver"))
	fetcher := scrape.NewPagedFetcher(source, cfg.Scrape.PageSize, cfg.Scrape.FetchBuffer, logger.Named("fetcher"))
	renderer := render.NewRenderer(blobStore, cfg.Storage.Prefix)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := hub.Close(closeCtx); closeErr != nil {
			logger.Warn("progress hub close failed", zap.Error(closeErr))
		}
	}()

	queue := queuememory.NewQueue(cfg.Scrape.QueueDepth)
	workerCfg := worker.Config{
		CompletionTopic: cfg.PubSub.TopicName,
		EnrichPDFs:      cfg.PDFFinder.Enabled,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Scrape.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			resolver,
			fetcher,
			finder,
			renderer,
			publisher,
			hub,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, jobStore, workers, clock, dispatcher.Config{
		StallTimeout:    cfg.StallTimeout(),
		Retention:       cfg.Retention(),
		HousekeepPeriod: time.Duration(cfg.Jobs.HousekeepPeriodS) * time.Second,
	}, logger.Named("dispatcher"))

	apiServer := api.NewServer(jobStore, queue, idGen, clock, artifacts, registry, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	grace := time.Duration(cfg.Server.ShutdownGraceS) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
