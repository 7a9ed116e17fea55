package warehouse

import (
	"context"
	"fmt"

	"github.com/consumerdata/ccdb-etl/internal/db"
	"github.com/consumerdata/ccdb-etl/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ComplaintStore is the warehouse-side contract for partition loads.
type ComplaintStore interface {
	// ReplacePartition atomically swaps the partition's rows for the given
	// snapshot and returns the number of rows inserted. Readers see either
	// the old partition state or the new one, never a mix.
	ReplacePartition(ctx context.Context, partitionKey string, records []domain.ComplaintRecord) (int, error)
}

var complaintColumns = []string{
	"complaint_id",
	"company_key",
	"date_received",
	"product",
	"sub_product",
	"issue",
	"sub_issue",
	"company",
	"state",
	"zip_code",
	"tags",
	"consumer_consent_provided",
	"submitted_via",
	"company_response_to_consumer",
	"timely_response",
	"consumer_disputed",
	"complaint_what_happened",
	"company_public_response",
	"created_date",
	"updated_date",
}

type complaintRepository struct {
	conn *db.Connection
}

// NewComplaintRepository wires a repository backed by the warehouse pool.
func NewComplaintRepository(conn *db.Connection) ComplaintStore {
	return &complaintRepository{conn: conn}
}

// ReplacePartition deletes the partition's current rows and bulk-inserts the
// snapshot inside one transaction. A staged snapshot is the latest superset
// for its partition, never a delta, so appending would duplicate complaint
// ids; delete-then-reinsert keeps re-runs idempotent.
func (r *complaintRepository) ReplacePartition(ctx context.Context, partitionKey string, records []domain.ComplaintRecord) (int, error) {
	var inserted int64

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM consumer_complaints WHERE company_key = $1`,
			partitionKey,
		); err != nil {
			return fmt.Errorf("failed to clear partition %s: %w", partitionKey, err)
		}

		n, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"consumer_complaints"},
			complaintColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := records[i]
				return []any{
					rec.ComplaintID,
					partitionKey,
					rec.DateReceived,
					nullable(rec.Product),
					nullable(rec.SubProduct),
					nullable(rec.Issue),
					nullable(rec.SubIssue),
					nullable(rec.Company),
					nullable(rec.State),
					nullable(rec.ZipCode),
					nullable(rec.Tags),
					nullable(rec.ConsumerConsentProvided),
					nullable(rec.SubmittedVia),
					nullable(rec.CompanyResponseToConsumer),
					nullable(rec.TimelyResponse),
					nullable(rec.ConsumerDisputed),
					nullable(rec.ComplaintWhatHappened),
					nullable(rec.CompanyPublicResponse),
					rec.CreatedDate,
					rec.UpdatedDate,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy into partition %s: %w", partitionKey, err)
		}

		inserted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	return int(inserted), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
