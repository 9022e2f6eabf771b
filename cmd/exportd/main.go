package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/footprint-labs/footprint-go/internal/convert"
	"github.com/footprint-labs/footprint-go/internal/extract"
	"github.com/footprint-labs/footprint-go/internal/metrics"
	"github.com/footprint-labs/footprint-go/internal/notify"
	"github.com/footprint-labs/footprint-go/internal/platform/auditlog"
	"github.com/footprint-labs/footprint-go/internal/platform/env"
	platformstore "github.com/footprint-labs/footprint-go/internal/platform/objectstore"
	"github.com/footprint-labs/footprint-go/internal/platform/postgres"
	"github.com/footprint-labs/footprint-go/internal/population"
	"github.com/footprint-labs/footprint-go/internal/queue"
	pgrepo "github.com/footprint-labs/footprint-go/internal/repo/postgres"
	"github.com/footprint-labs/footprint-go/internal/service/runs"
	"github.com/footprint-labs/footprint-go/internal/sources"
	"github.com/footprint-labs/footprint-go/internal/storage/objectstore"
	"github.com/footprint-labs/footprint-go/internal/tiles"
	"github.com/footprint-labs/footprint-go/internal/worker"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpAddr := env.String("FOOTPRINT_HTTP_ADDR", ":8080")
	extractTimeout, err := env.Duration("FOOTPRINT_EXTRACT_TIMEOUT", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	ogrTimeout, err := env.Duration("FOOTPRINT_OGR2OGR_TIMEOUT", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	notifyDelay, err := env.Duration("FOOTPRINT_NOTIFY_DELAY", 30*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	linkTTL, err := env.Duration("FOOTPRINT_DOWNLOAD_LINK_TTL", 7*24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	retention, err := env.Duration("FOOTPRINT_RUN_RETENTION", 30*24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	cleanupInterval, err := env.Duration("FOOTPRINT_CLEANUP_INTERVAL", 24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := platformstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := platformstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()
	store, err := objectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}

	natsURL := env.String("FOOTPRINT_NATS_URL", "nats://127.0.0.1:4222")
	taskQueue, err := queue.NewNATSQueue(natsURL, logger)
	if err != nil {
		logger.Error("queue unavailable", "error", err)
		os.Exit(1)
	}
	defer taskQueue.Close()

	catalog := sources.DefaultCatalog()
	if path := env.String("FOOTPRINT_PROVIDER_CATALOG", ""); path != "" {
		catalog, err = sources.LoadCatalog(path)
		if err != nil {
			logger.Error("invalid provider catalog", "path", path, "error", err)
			os.Exit(2)
		}
	}
	registry, err := sources.BuildRegistry(catalog)
	if err != nil {
		logger.Error("provider registry init failed", "error", err)
		os.Exit(2)
	}
	extractor, err := extract.NewExtractor(registry, logger, extractTimeout)
	if err != nil {
		logger.Error("extractor init failed", "error", err)
		os.Exit(2)
	}

	ogrBin := env.String("FOOTPRINT_OGR2OGR_BIN", "ogr2ogr")
	converter := convert.NewConverter(convert.NewOGREngine(ogrBin, ogrTimeout, logger), logger)

	popCfg, err := population.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid population config", "error", err)
		os.Exit(2)
	}
	enricher := population.NewEnricher(population.NewClient(popCfg, &http.Client{}, logger), logger)

	tilesCfg, err := tiles.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid tiling config", "error", err)
		os.Exit(2)
	}
	tiler := tiles.NewBuilder(tilesCfg, logger)

	smtpCfg, err := notify.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid smtp config", "error", err)
		os.Exit(2)
	}
	notifier := notify.NewSMTPNotifier(smtpCfg, logger)

	promReg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promReg)

	exportRepo := pgrepo.NewExportStore(db)
	runRepo := pgrepo.NewRunStore(db)
	audit := auditlog.NewRecorder(db, "exportd", logger)

	coordinator, err := runs.NewCoordinator(runs.Deps{
		Exports:     exportRepo,
		Runs:        runRepo,
		Extractor:   extractor,
		Converter:   converter,
		Enricher:    enricher,
		Tiles:       tiler,
		Store:       store,
		Queue:       taskQueue,
		Audit:       audit,
		Metrics:     recorder,
		Buckets:     runs.Buckets{Archives: storeCfg.BucketArchives, Tiles: storeCfg.BucketTiles},
		Logger:      logger,
		NotifyDelay: notifyDelay,
	})
	if err != nil {
		logger.Error("coordinator init failed", "error", err)
		os.Exit(2)
	}

	sender := worker.NewCompletionSender(exportRepo, runRepo, store, notifier, storeCfg.BucketArchives, linkTTL, logger)
	janitor := worker.NewJanitor(runRepo, store, storeCfg.BucketArchives, storeCfg.BucketTiles, retention, cleanupInterval, logger)
	w := worker.New(taskQueue, coordinator, sender, janitor, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("health listener started", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health listener failed", "error", err)
		}
	}()

	logger.Info("exportd started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("exportd stopped")
}
