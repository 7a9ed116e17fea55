package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/fetch"
	"github.com/consumerdata/ccdb-etl/internal/quality"
	"github.com/consumerdata/ccdb-etl/internal/stage"
	"github.com/consumerdata/ccdb-etl/internal/storage"
	"github.com/consumerdata/ccdb-etl/internal/transform"
	"github.com/consumerdata/ccdb-etl/internal/warehouse"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher produces a partition's raw record stream.
type Fetcher interface {
	Fetch(ctx context.Context, q fetch.Query) iter.Seq2[fetch.RawRecord, error]
}

// Stager durably writes a partition snapshot.
type Stager interface {
	Write(ctx context.Context, partitionKey string, records []domain.ComplaintRecord) (stage.Artifact, error)
}

// LoadRunner loads a manifest into the warehouse.
type LoadRunner interface {
	Load(ctx context.Context, manifest stage.Manifest) (warehouse.LoadResult, error)
}

// QualityEvaluator runs the post-load checks.
type QualityEvaluator interface {
	Evaluate(ctx context.Context) (quality.Report, error)
}

// RunConfig scopes one pipeline run; the scheduler supplies it.
type RunConfig struct {
	Companies    []string `json:"companies"`
	LookbackDays int      `json:"lookback_days"`
	MaxRecords   int      `json:"max_records"`
}

// RunReport is the run's terminal signal: per-partition outcomes with
// reasons, not a single success boolean.
type RunReport struct {
	RunID      uuid.UUID                 `json:"run_id"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Status     domain.RunStatus          `json:"status"`
	Partitions []domain.PartitionOutcome `json:"partitions"`
	Transform  transform.Stats           `json:"transform"`
	Load       warehouse.LoadResult      `json:"load"`
	Quality    *quality.Report           `json:"quality,omitempty"`
}

// Service runs the extract-stage-load pipeline end to end.
type Service struct {
	fetcher     Fetcher
	transformer *transform.Transformer
	writer      Stager
	store       storage.ObjectStore
	prefix      string
	loader      LoadRunner
	gate        QualityEvaluator
	runLog      warehouse.RunLogRepository
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService wires the pipeline. runLog may be nil; run auditing is best
// effort. concurrency bounds how many partitions fetch at once so the remote
// API's rate limits are respected.
func NewService(
	fetcher Fetcher,
	transformer *transform.Transformer,
	writer Stager,
	store storage.ObjectStore,
	prefix string,
	loader LoadRunner,
	gate QualityEvaluator,
	runLog warehouse.RunLogRepository,
	concurrency int,
	logger *zap.Logger,
) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		fetcher:     fetcher,
		transformer: transformer,
		writer:      writer,
		store:       store,
		prefix:      prefix,
		loader:      loader,
		gate:        gate,
		runLog:      runLog,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// stageOutcome is the fetch/transform/stage result for one company.
type stageOutcome struct {
	partition string
	fetched   int
	stats     transform.Stats
	skipped   bool
	reason    string
}

// Run executes one pipeline run: fetch, transform and stage every company
// concurrently, then compute the manifest from a fresh storage listing, load
// it partition by partition, and finish with the quality gate. A failure in
// one partition never blocks its siblings; only unreachable storage or a
// fully failed load aborts the run.
func (s *Service) Run(ctx context.Context, cfg RunConfig) RunReport {
	report := RunReport{
		RunID:     uuid.New(),
		StartedAt: s.now().UTC(),
	}
	logger := s.logger.With(zap.String("run_id", report.RunID.String()))

	dateMax := report.StartedAt
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 1
	}
	dateMin := dateMax.AddDate(0, 0, -lookback)

	logger.Info("pipeline run started",
		zap.Strings("companies", cfg.Companies),
		zap.Int("lookback_days", lookback),
		zap.Int("max_records", cfg.MaxRecords))

	outcomes := s.stagePartitions(ctx, cfg, dateMin, dateMax, logger)

	byPartition := make(map[string]*domain.PartitionOutcome)
	for _, oc := range outcomes {
		report.Transform.Attempted += oc.stats.Attempted
		report.Transform.Succeeded += oc.stats.Succeeded
		report.Transform.Failed += oc.stats.Failed
		byPartition[oc.partition] = &domain.PartitionOutcome{
			Partition: oc.partition,
			Fetched:   oc.fetched,
			Skipped:   oc.skipped,
			Reason:    oc.reason,
		}
	}

	status := s.loadAndEvaluate(ctx, &report, byPartition, logger)

	// Partitions that were staged but then skipped at load keep the load
	// reason; partitions skipped at fetch/stage keep theirs.
	partitions := make([]domain.PartitionOutcome, 0, len(byPartition))
	for _, oc := range byPartition {
		partitions = append(partitions, *oc)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Partition < partitions[j].Partition })
	report.Partitions = partitions

	report.FinishedAt = s.now().UTC()
	report.Status = status

	logger.Info("pipeline run finished",
		zap.String("status", string(report.Status)),
		zap.Int("partitions_loaded", report.Load.PartitionsLoaded),
		zap.Int("partitions_skipped", len(report.Load.PartitionsSkipped)),
		zap.Int("rows_loaded", report.Load.RowsLoaded))

	s.recordRun(ctx, report, logger)

	return report
}

// stagePartitions fetches, transforms and stages each company under the
// concurrency limit. Partition failures are captured as outcomes, never as
// errors; the errgroup exists for its bounded scheduling.
func (s *Service) stagePartitions(ctx context.Context, cfg RunConfig, dateMin, dateMax time.Time, logger *zap.Logger) []stageOutcome {
	outcomes := make([]stageOutcome, len(cfg.Companies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, company := range cfg.Companies {
		g.Go(func() error {
			outcomes[i] = s.stageOne(gctx, company, dateMin, dateMax, cfg.MaxRecords, logger)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	return outcomes
}

func (s *Service) stageOne(ctx context.Context, company string, dateMin, dateMax time.Time, maxRecords int, logger *zap.Logger) stageOutcome {
	partition := domain.PartitionKey(company)
	outcome := stageOutcome{partition: partition}

	var raw []fetch.RawRecord
	for rec, err := range s.fetcher.Fetch(ctx, fetch.Query{
		Company:    company,
		DateMin:    dateMin,
		DateMax:    dateMax,
		MaxRecords: maxRecords,
	}) {
		if err != nil {
			outcome.skipped = true
			outcome.reason = fetchReason(err)
			logger.Warn("partition fetch failed",
				zap.String("partition", partition),
				zap.Error(err))
			return outcome
		}
		raw = append(raw, rec)
	}
	outcome.fetched = len(raw)

	records, failures, stats := s.transformer.Transform(raw)
	outcome.stats = stats
	for _, failure := range failures {
		logger.Warn("record dropped",
			zap.String("partition", partition),
			zap.String("complaint_id", failure.ComplaintID),
			zap.String("reason", failure.Reason))
	}

	if _, err := s.writer.Write(ctx, partition, records); err != nil {
		// Previous artifact stays in place as the fallback snapshot.
		outcome.skipped = true
		outcome.reason = fmt.Sprintf("stage write failed: %v", err)
		logger.Error("partition stage failed",
			zap.String("partition", partition),
			zap.Error(err))
		return outcome
	}

	return outcome
}

func (s *Service) loadAndEvaluate(ctx context.Context, report *RunReport, byPartition map[string]*domain.PartitionOutcome, logger *zap.Logger) domain.RunStatus {
	manifest, err := stage.BuildManifest(ctx, s.store, s.prefix)
	if err != nil {
		// Staging unreachable; nothing can be loaded this run.
		logger.Error("failed to build load manifest", zap.Error(err))
		return domain.RunFailed
	}

	result, loadErr := s.loader.Load(ctx, manifest)
	report.Load = result

	for partition, rows := range result.RowsByPartition {
		oc, ok := byPartition[partition]
		if !ok {
			// Present in staging from an earlier run but not fetched now.
			oc = &domain.PartitionOutcome{Partition: partition}
			byPartition[partition] = oc
		}
		oc.Loaded = rows
	}
	for _, skipped := range result.PartitionsSkipped {
		oc, ok := byPartition[skipped.Partition]
		if !ok {
			oc = &domain.PartitionOutcome{Partition: skipped.Partition}
			byPartition[skipped.Partition] = oc
		}
		oc.Skipped = true
		if oc.Reason == "" {
			oc.Reason = skipped.Reason
		}
	}

	if loadErr != nil && !errors.Is(loadErr, context.Canceled) && !errors.Is(loadErr, context.DeadlineExceeded) {
		logger.Error("load pass failed", zap.Error(loadErr))
		return domain.RunFailed
	}
	if len(manifest) > 0 && result.PartitionsLoaded == 0 {
		// Every partition failed: warehouse is effectively unreachable.
		return domain.RunFailed
	}

	status := domain.RunSucceeded
	for _, oc := range byPartition {
		if oc.Skipped {
			status = domain.RunWarning
			break
		}
	}

	if s.gate != nil {
		qreport, err := s.gate.Evaluate(ctx)
		if err != nil {
			logger.Warn("quality gate could not run", zap.Error(err))
			status = domain.RunWarning
		} else {
			report.Quality = &qreport
			if !qreport.Passed {
				status = domain.RunWarning
			}
		}
	}

	return status
}

// recordRun persists the run outcome; failures here are logged, never fatal.
func (s *Service) recordRun(ctx context.Context, report RunReport, logger *zap.Logger) {
	if s.runLog == nil {
		return
	}

	detail, err := json.Marshal(report.Partitions)
	if err != nil {
		detail = nil
	}

	entry := domain.RunLogEntry{
		RunID:             report.RunID,
		StartedAt:         report.StartedAt,
		FinishedAt:        report.FinishedAt,
		Status:            report.Status,
		PartitionsLoaded:  report.Load.PartitionsLoaded,
		PartitionsSkipped: len(report.Load.PartitionsSkipped),
		RowsLoaded:        report.Load.RowsLoaded,
		Detail:            string(detail),
	}
	if err := s.runLog.Record(ctx, entry); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func fetchReason(err error) string {
	switch {
	case errors.Is(err, fetch.ErrMalformedResponse):
		return fmt.Sprintf("malformed response: %v", err)
	case errors.Is(err, fetch.ErrFetchExhausted):
		return fmt.Sprintf("fetch exhausted: %v", err)
	default:
		return fmt.Sprintf("fetch failed: %v", err)
	}
}
