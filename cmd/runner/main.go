package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/consumerdata/ccdb-etl/internal/config"
	"github.com/consumerdata/ccdb-etl/internal/db"
	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/fetch"
	"github.com/consumerdata/ccdb-etl/internal/pipeline"
	"github.com/consumerdata/ccdb-etl/internal/quality"
	"github.com/consumerdata/ccdb-etl/internal/stage"
	"github.com/consumerdata/ccdb-etl/internal/storage"
	"github.com/consumerdata/ccdb-etl/internal/transform"
	"github.com/consumerdata/ccdb-etl/internal/warehouse"

	"go.uber.org/zap"
)

// Exit codes for the scheduler: 0 success (including no new data),
// 2 success with warnings, 1 failure.
const (
	exitOK      = 0
	exitFailure = 1
	exitWarning = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", ".", "directory containing config.yaml")
		lookbackDays = flag.Int("lookback-days", 0, "days of complaints to fetch (overrides config)")
		maxRecords   = flag.Int("max-records", 0, "per-partition record cap (overrides config)")
		companies    = flag.String("companies", "", "comma-separated company names (overrides config)")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return exitFailure
	}

	runCfg := pipeline.RunConfig{
		Companies:    cfg.Pipeline.Companies,
		LookbackDays: cfg.Pipeline.LookbackDays,
		MaxRecords:   cfg.Pipeline.MaxRecords,
	}
	if *lookbackDays > 0 {
		runCfg.LookbackDays = *lookbackDays
	}
	if *maxRecords > 0 {
		runCfg.MaxRecords = *maxRecords
	}
	if *companies != "" {
		runCfg.Companies = strings.Split(*companies, ",")
	}
	if len(runCfg.Companies) == 0 {
		logger.Error("no companies configured")
		return exitFailure
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return exitFailure
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Error("failed to run migrations", zap.Error(err))
		return exitFailure
	}

	store, err := storage.NewS3Store(storage.S3Config{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
	})
	if err != nil {
		logger.Error("failed to create object store", zap.Error(err))
		return exitFailure
	}

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

	report := service.Run(ctx, runCfg)

	switch report.Status {
	case domain.RunSucceeded:
		return exitOK
	case domain.RunWarning:
		return exitWarning
	default:
		return exitFailure
	}
}
