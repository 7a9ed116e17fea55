package warehouse

import (
	"context"
	"fmt"

	"github.com/consumerdata/ccdb-etl/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunLogRepository persists per-run outcomes for auditing.
type RunLogRepository interface {
	Record(ctx context.Context, entry domain.RunLogEntry) error
}

type runLogRepository struct {
	pool *pgxpool.Pool
}

// NewRunLogRepository wires a repository backed by pgxpool.
func NewRunLogRepository(pool *pgxpool.Pool) RunLogRepository {
	return &runLogRepository{pool: pool}
}

func (r *runLogRepository) Record(ctx context.Context, entry domain.RunLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("run log repository not initialized")
	}

	var detail any
	if entry.Detail != "" {
		detail = entry.Detail
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO ingestion_runs (run_id, started_at, finished_at, status, partitions_loaded, partitions_skipped, rows_loaded, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.RunID,
		entry.StartedAt,
		entry.FinishedAt,
		string(entry.Status),
		entry.PartitionsLoaded,
		entry.PartitionsSkipped,
		entry.RowsLoaded,
		detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion run: %w", err)
	}

	return nil
}
