package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/config"
	"github.com/consumerdata/ccdb-etl/internal/db"
	"github.com/consumerdata/ccdb-etl/internal/fetch"
	"github.com/consumerdata/ccdb-etl/internal/middleware"
	"github.com/consumerdata/ccdb-etl/internal/pipeline"
	"github.com/consumerdata/ccdb-etl/internal/quality"
	"github.com/consumerdata/ccdb-etl/internal/stage"
	"github.com/consumerdata/ccdb-etl/internal/storage"
	"github.com/consumerdata/ccdb-etl/internal/transform"
	"github.com/consumerdata/ccdb-etl/internal/warehouse"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	store, err := storage.NewS3Store(storage.S3Config{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
	})
	if err != nil {
		logger.Fatal("failed to create object store", zap.Error(err))
	}

	// Wire the pipeline
	fetcher := fetch.NewClient(fetch.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		PageSize:   cfg.API.PageSize,
		MaxRetries: cfg.API.MaxRetries,
		UserAgent:  cfg.API.UserAgent,
	}, logger)
	transformer := transform.New(logger)
	writer := stage.NewWriter(store, cfg.Storage.Prefix, logger)
	repo := warehouse.NewComplaintRepository(conn)
	loader := warehouse.NewLoader(store, repo, logger)
	gate := quality.NewGate(conn.Pool, logger)
	runLog := warehouse.NewRunLogRepository(conn.Pool)

	service := pipeline.NewService(
		fetcher, transformer, writer,
		store, cfg.Storage.Prefix,
		loader, gate, runLog,
		cfg.Pipeline.Concurrency, logger,
	)

	runsHandler := pipeline.NewHTTPHandler(service, pipeline.RunConfig{
		Companies:    cfg.Pipeline.Companies,
		LookbackDays: cfg.Pipeline.LookbackDays,
		MaxRecords:   cfg.Pipeline.MaxRecords,
	})

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/runs", corsHandler.Handler(middleware.LoggingMiddleware(logger, runsHandler)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Create HTTP server. Runs can page through years of complaints, so the
	// write timeout is generous.
	server := &http.Server{
		Addr:         ":8080",
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting pipeline server", zap.String("addr", server.Addr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
