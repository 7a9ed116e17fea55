package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go.uber.org/zap"
)

// RowQuerier is the slice of the warehouse connection the gate needs;
// *pgxpool.Pool satisfies it.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Report holds post-load table invariant metrics. A duplicate or null
// complaint_id is a hard signal (Passed=false) because it means the loader's
// dedup discipline broke; null counts on optional fields are soft warnings.
type Report struct {
	TotalRows             int64      `json:"total_rows"`
	DuplicateComplaintIDs int64      `json:"duplicate_complaint_ids"`
	NullComplaintIDs      int64      `json:"null_complaint_ids"`
	NullDateReceived      int64      `json:"null_date_received"`
	NullProduct           int64      `json:"null_product"`
	NullCompany           int64      `json:"null_company"`
	EarliestDate          *time.Time `json:"earliest_date,omitempty"`
	LatestDate            *time.Time `json:"latest_date,omitempty"`
	Passed                bool       `json:"passed"`
	Issues                []string   `json:"issues,omitempty"`
	Warnings              []string   `json:"warnings,omitempty"`
}

// Gate runs advisory post-load checks against the warehouse table. It never
// rolls anything back; committed data stays queryable regardless of outcome.
type Gate struct {
	db     RowQuerier
	table  string
	logger *zap.Logger
}

func NewGate(db RowQuerier, logger *zap.Logger) *Gate {
	return &Gate{db: db, table: "consumer_complaints", logger: logger}
}

// Evaluate computes the quality report for the current table snapshot.
func (g *Gate) Evaluate(ctx context.Context) (Report, error) {
	report := Report{Passed: true}

	err := g.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*), COUNT(*) - COUNT(DISTINCT complaint_id) FROM %s`, g.table),
	).Scan(&report.TotalRows, &report.DuplicateComplaintIDs)
	if err != nil {
		return Report{}, fmt.Errorf("failed to count rows: %w", err)
	}

	err = g.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE complaint_id IS NULL),
			COUNT(*) FILTER (WHERE date_received IS NULL),
			COUNT(*) FILTER (WHERE product IS NULL),
			COUNT(*) FILTER (WHERE company IS NULL)
		FROM %s`, g.table),
	).Scan(&report.NullComplaintIDs, &report.NullDateReceived, &report.NullProduct, &report.NullCompany)
	if err != nil {
		return Report{}, fmt.Errorf("failed to count nulls: %w", err)
	}

	err = g.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT MIN(date_received), MAX(date_received)
		FROM %s WHERE date_received IS NOT NULL`, g.table),
	).Scan(&report.EarliestDate, &report.LatestDate)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read date range: %w", err)
	}

	if report.DuplicateComplaintIDs > 0 {
		report.Passed = false
		report.Issues = append(report.Issues,
			fmt.Sprintf("found %d duplicate complaint_id values", report.DuplicateComplaintIDs))
	}
	if report.NullComplaintIDs > 0 {
		report.Passed = false
		report.Issues = append(report.Issues,
			fmt.Sprintf("found %d rows with null complaint_id", report.NullComplaintIDs))
	}
	if report.NullDateReceived > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d rows missing date_received", report.NullDateReceived))
	}
	if report.NullProduct > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d rows missing product", report.NullProduct))
	}
	if report.NullCompany > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d rows missing company", report.NullCompany))
	}

	if report.Passed {
		g.logger.Info("quality checks passed",
			zap.Int64("total_rows", report.TotalRows),
			zap.Strings("warnings", report.Warnings))
	} else {
		g.logger.Warn("quality checks failed",
			zap.Int64("total_rows", report.TotalRows),
			zap.Strings("issues", report.Issues))
	}

	return report, nil
}
