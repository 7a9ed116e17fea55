package stage

import (
	"context"
	"testing"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(id, company string) domain.ComplaintRecord {
	return domain.ComplaintRecord{
		ComplaintID:  id,
		DateReceived: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Company:      company,
	}
}

func writerAt(store storage.ObjectStore, ts time.Time) *Writer {
	w := NewWriter(store, "consumer_complaints", zap.NewNop())
	w.now = func() time.Time { return ts }
	return w
}

func TestWriteRetiresSupersededArtifacts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := writerAt(store, t1).Write(ctx, "acme", []domain.ComplaintRecord{record("A1", "Acme")})
	require.NoError(t, err)

	t2 := t1.Add(time.Hour)
	artifact, err := writerAt(store, t2).Write(ctx, "acme", []domain.ComplaintRecord{record("A1", "Acme"), record("A3", "Acme")})
	require.NoError(t, err)
	require.Equal(t, 2, artifact.RecordCount)

	keys, err := store.List(ctx, "consumer_complaints/")
	require.NoError(t, err)
	require.Equal(t, []string{artifact.Key}, keys, "exactly one artifact must remain per partition")
}

func TestWriteLeavesOtherPartitionsAlone(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := writerAt(store, t1).Write(ctx, "acme", []domain.ComplaintRecord{record("A1", "Acme")})
	require.NoError(t, err)

	second, err := writerAt(store, t1.Add(time.Minute)).Write(ctx, "globex", []domain.ComplaintRecord{record("G1", "Globex")})
	require.NoError(t, err)

	keys, err := store.List(ctx, "consumer_complaints/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{first.Key, second.Key}, keys)
}

func TestWriteFailureLeavesPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := writerAt(store, t1).Write(ctx, "acme", []domain.ComplaintRecord{record("A1", "Acme")})
	require.NoError(t, err)

	store.FailPut = true
	_, err = writerAt(store, t1.Add(time.Hour)).Write(ctx, "acme", []domain.ComplaintRecord{record("A2", "Acme")})
	require.ErrorIs(t, err, ErrStageWrite)

	store.FailPut = false
	keys, err := store.List(ctx, "consumer_complaints/")
	require.NoError(t, err)
	require.Equal(t, []string{first.Key}, keys, "failed write must not disturb the fallback artifact")
}

func TestRetirementFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := writerAt(store, t1).Write(ctx, "acme", []domain.ComplaintRecord{record("A1", "Acme")})
	require.NoError(t, err)

	store.FailDelete = true
	artifact, err := writerAt(store, t1.Add(time.Hour)).Write(ctx, "acme", []domain.ComplaintRecord{record("A2", "Acme")})
	require.NoError(t, err, "a lingering stale artifact is a storage-cost problem, not an error")

	keys, err := store.List(ctx, "consumer_complaints/")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Contains(t, keys, artifact.Key)
}

func TestWriteEmptyBatchStillProducesArtifact(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	artifact, err := writerAt(store, t1).Write(ctx, "acme", nil)
	require.NoError(t, err)
	require.Equal(t, 0, artifact.RecordCount)

	data, err := store.Get(ctx, artifact.Key)
	require.NoError(t, err)

	records, err := DecodeArtifact(data)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	want := []domain.ComplaintRecord{record("A1", "Acme"), record("A2", "Acme")}
	artifact, err := writerAt(store, time.Now()).Write(ctx, "acme", want)
	require.NoError(t, err)

	data, err := store.Get(ctx, artifact.Key)
	require.NoError(t, err)

	got, err := DecodeArtifact(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A1", got[0].ComplaintID)
	require.Equal(t, "A2", got[1].ComplaintID)
}
