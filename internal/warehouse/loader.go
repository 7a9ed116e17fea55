package warehouse

import (
	"context"
	"sort"

	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/stage"
	"github.com/consumerdata/ccdb-etl/internal/storage"

	"go.uber.org/zap"
)

// SkippedPartition names a partition whose load failed this run, with the
// reason it was skipped.
type SkippedPartition struct {
	Partition string `json:"partition"`
	Reason    string `json:"reason"`
}

// LoadResult summarizes one load pass.
type LoadResult struct {
	PartitionsLoaded  int                `json:"partitions_loaded"`
	RowsLoaded        int                `json:"rows_loaded"`
	PartitionsSkipped []SkippedPartition `json:"partitions_skipped,omitempty"`
	RowsByPartition   map[string]int     `json:"rows_by_partition,omitempty"`
}

// Loader loads each partition's newest staging artifact into the warehouse.
// It only ever reads staging artifacts; retirement belongs to the stage
// writer.
type Loader struct {
	store  storage.ObjectStore
	repo   ComplaintStore
	logger *zap.Logger
}

func NewLoader(store storage.ObjectStore, repo ComplaintStore, logger *zap.Logger) *Loader {
	return &Loader{store: store, repo: repo, logger: logger}
}

// Load processes the manifest partition by partition. A failed partition is
// recorded and skipped, never fatal to its siblings; cancellation stops
// issuing new loads but the in-flight transaction finishes atomically.
func (l *Loader) Load(ctx context.Context, manifest stage.Manifest) (LoadResult, error) {
	result := LoadResult{RowsByPartition: make(map[string]int)}

	partitions := make([]string, 0, len(manifest))
	for partition := range manifest {
		partitions = append(partitions, partition)
	}
	sort.Strings(partitions)

	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			result.PartitionsSkipped = append(result.PartitionsSkipped, SkippedPartition{
				Partition: partition,
				Reason:    "run cancelled",
			})
			continue
		}

		artifact := manifest[partition]
		rows, err := l.loadPartition(ctx, artifact)
		if err != nil {
			l.logger.Error("partition load failed",
				zap.String("partition", partition),
				zap.String("artifact", artifact.Key),
				zap.Error(err))
			result.PartitionsSkipped = append(result.PartitionsSkipped, SkippedPartition{
				Partition: partition,
				Reason:    err.Error(),
			})
			continue
		}

		result.PartitionsLoaded++
		result.RowsLoaded += rows
		result.RowsByPartition[partition] = rows
		l.logger.Info("partition loaded",
			zap.String("partition", partition),
			zap.String("artifact", artifact.Key),
			zap.Int("rows", rows))
	}

	return result, ctx.Err()
}

func (l *Loader) loadPartition(ctx context.Context, artifact stage.Artifact) (int, error) {
	data, err := l.store.Get(ctx, artifact.Key)
	if err != nil {
		return 0, err
	}

	records, err := stage.DecodeArtifact(data)
	if err != nil {
		return 0, err
	}

	return l.repo.ReplacePartition(ctx, artifact.PartitionKey, dedupe(records))
}

// dedupe keeps the last occurrence per complaint_id, preserving order of
// first appearance otherwise. Snapshots occasionally carry the same
// complaint twice when the API returns an update mid-pagination.
func dedupe(records []domain.ComplaintRecord) []domain.ComplaintRecord {
	latest := make(map[string]domain.ComplaintRecord, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		if _, seen := latest[rec.ComplaintID]; !seen {
			order = append(order, rec.ComplaintID)
		}
		latest[rec.ComplaintID] = rec
	}

	out := make([]domain.ComplaintRecord, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
