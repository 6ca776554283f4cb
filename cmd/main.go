package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/cataloghq/catalog-backend/internal/db"
	"github.com/cataloghq/catalog-backend/internal/handlers"
	"github.com/cataloghq/catalog-backend/internal/importer"
	"github.com/cataloghq/catalog-backend/internal/jobs"
	"github.com/cataloghq/catalog-backend/internal/jobs/pipeline/product_import"
	"github.com/cataloghq/catalog-backend/internal/jobs/runtime"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/observability"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/server"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/sourceseed"
	"github.com/cataloghq/catalog-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "catalog-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	sourceRepo := repos.NewImportSourceRepo(thePG, log)
	jobRepo := repos.NewImportJobRepo(thePG, log)
	versionRepo := repos.NewProductVersionRepo(thePG, log)

	// Declarative sources
	seedPath := utils.GetEnv("SOURCE_SEED_FILE", "config/sources.yaml", log)
	if err := sourceseed.SeedFromFile(ctx, thePG, log, sourceRepo, seedPath); err != nil {
		log.Error("Source seeding failed", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService", "error", err)
	}
	var searchSync services.SearchSyncPublisher = services.NopSearchSync{}
	if ss, err := services.NewRedisSearchSync(log); err != nil {
		log.Warn("Could not init search sync, continuing without it", "error", err)
	} else {
		searchSync = ss
	}
	var notifier services.JobNotifier = services.NopJobNotifier{}
	if n, err := services.NewRedisJobNotifier(log); err != nil {
		log.Warn("Could not init job notifier, continuing without it", "error", err)
	} else {
		notifier = n
	}
	versionWriter := services.NewVersionWriter(thePG, log, versionRepo)
	importService := services.NewImportService(thePG, log, jobRepo, sourceRepo)

	// Pipelines
	log.Info("Setting up job pipelines from main...")
	transforms := importer.NewTransformRegistry()
	mapper := importer.NewMapper(transforms)
	fetcher := importer.NewFetcher(bucketService, nil)
	registry := runtime.NewRegistry()
	if err := registry.Register(product_import.New(thePG, log, sourceRepo, versionRepo, fetcher, mapper, versionWriter, searchSync)); err != nil {
		log.Error("Pipeline registration failed", "error", err)
		os.Exit(1)
	}

	// Worker pool
	workerCfg := jobs.DefaultWorkerConfig()
	workerCfg.PoolSize = utils.GetEnvAsInt("WORKER_POOL_SIZE", workerCfg.PoolSize, log)
	workerCfg.JobTimeout = time.Duration(utils.GetEnvAsInt("JOB_TIMEOUT_MINUTES", 30, log)) * time.Minute
	workerCfg.StartRate = rate.Limit(utils.GetEnvAsInt("JOB_START_RATE", 2, log))
	worker := jobs.NewWorker(thePG, log, jobRepo, registry, notifier, workerCfg)
	pool := worker.Start(ctx)

	// Handlers and router
	log.Info("Setting up router from main...")
	importsHandler := handlers.NewImportsHandler(importService)
	router := server.NewRouter(server.RouterConfig{
		ImportsHandler: importsHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	_ = pool.Wait()
	if c, ok := searchSync.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if shutdownOtel != nil {
		_ = shutdownOtel(shutdownCtx)
	}
}
