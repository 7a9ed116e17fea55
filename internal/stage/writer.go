package stage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/storage"

	"go.uber.org/zap"
)

// ErrStageWrite is returned when a staging artifact cannot be made durable.
// The previous artifact for the partition is left intact as the fallback.
var ErrStageWrite = errors.New("stage write failed")

// Writer serializes transformed batches into timestamped CSV artifacts and
// retires superseded artifacts for the same partition.
type Writer struct {
	store  storage.ObjectStore
	prefix string
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWriter(store storage.ObjectStore, prefix string, logger *zap.Logger) *Writer {
	return &Writer{
		store:  store,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Write stages the batch as the partition's new snapshot. The artifact is
// fully durable before any older artifact is deleted, so there is never a
// window where the partition has no valid artifact. An empty batch still
// produces an artifact: "no rows in the window" is a snapshot too.
func (w *Writer) Write(ctx context.Context, partitionKey string, records []domain.ComplaintRecord) (Artifact, error) {
	// Writers for the same partition must not interleave write and
	// retirement; distinct partitions never contend.
	lock := w.partitionLock(partitionKey)
	lock.Lock()
	defer lock.Unlock()

	data, err := encodeCSV(records)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrStageWrite, err)
	}

	artifact := Artifact{
		PartitionKey: partitionKey,
		Timestamp:    w.now().UTC().Truncate(time.Second),
		RecordCount:  len(records),
	}
	artifact.Key = artifactKey(w.prefix, partitionKey, artifact.Timestamp)

	if err := w.store.Put(ctx, artifact.Key, data); err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrStageWrite, err)
	}

	w.logger.Info("staged artifact",
		zap.String("partition", partitionKey),
		zap.String("key", artifact.Key),
		zap.Int("records", artifact.RecordCount))

	w.retire(ctx, artifact)

	return artifact, nil
}

// retire deletes every other artifact for the partition. Failures are logged
// and swallowed: a stale artifact lingering costs storage, not correctness,
// because loads always pick the newest key.
func (w *Writer) retire(ctx context.Context, current Artifact) {
	keys, err := w.store.List(ctx, w.prefix+"/")
	if err != nil {
		w.logger.Warn("failed to list artifacts for retirement",
			zap.String("partition", current.PartitionKey),
			zap.Error(err))
		return
	}

	pattern := artifactPattern(w.prefix)
	for _, key := range keys {
		old, ok := parseArtifactKey(pattern, key)
		if !ok || old.PartitionKey != current.PartitionKey || old.Key == current.Key {
			continue
		}
		if err := w.store.Delete(ctx, old.Key); err != nil {
			w.logger.Warn("failed to delete superseded artifact",
				zap.String("key", old.Key),
				zap.Error(err))
			continue
		}
		w.logger.Info("retired artifact", zap.String("key", old.Key))
	}
}

func (w *Writer) partitionLock(partitionKey string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[partitionKey]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[partitionKey] = lock
	}
	return lock
}

func encodeCSV(records []domain.ComplaintRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(domain.CSVHeader); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := cw.Write(rec.CSVRow()); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeArtifact parses a staged CSV back into records, in file order.
func DecodeArtifact(data []byte) ([]domain.ComplaintRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("artifact has no header row")
	}

	records := make([]domain.ComplaintRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := domain.ComplaintFromCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("artifact row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
