package quality

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubQuerier answers the gate's three queries from canned values.
type stubQuerier struct {
	total      int64
	duplicates int64
	nullIDs    int64
	nullDates  int64
	nullProds  int64
	nullComps  int64
	earliest   *time.Time
	latest     *time.Time
}

type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch out := d.(type) {
		case *int64:
			*out = r.values[i].(int64)
		case **time.Time:
			if r.values[i] == nil {
				*out = nil
			} else {
				*out = r.values[i].(*time.Time)
			}
		}
	}
	return nil
}

func (s *stubQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "DISTINCT"):
		return stubRow{values: []any{s.total, s.duplicates}}
	case strings.Contains(sql, "FILTER"):
		return stubRow{values: []any{s.nullIDs, s.nullDates, s.nullProds, s.nullComps}}
	default:
		return stubRow{values: []any{s.earliest, s.latest}}
	}
}

func TestEvaluatePassesOnCleanTable(t *testing.T) {
	earliest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	gate := NewGate(&stubQuerier{total: 100, earliest: &earliest, latest: &latest}, zap.NewNop())

	report, err := gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Equal(t, int64(100), report.TotalRows)
	require.Empty(t, report.Issues)
	require.Equal(t, &earliest, report.EarliestDate)
	require.Equal(t, &latest, report.LatestDate)
}

func TestEvaluateFlagsDuplicateAsHardViolation(t *testing.T) {
	gate := NewGate(&stubQuerier{total: 10, duplicates: 1}, zap.NewNop())

	report, err := gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Equal(t, int64(1), report.DuplicateComplaintIDs)
	require.Len(t, report.Issues, 1)
	require.Contains(t, report.Issues[0], "1 duplicate complaint_id")
}

func TestEvaluateNullIDIsHardNullProductIsSoft(t *testing.T) {
	gate := NewGate(&stubQuerier{total: 10, nullIDs: 2, nullProds: 3}, zap.NewNop())

	report, err := gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Len(t, report.Issues, 1)
	require.Len(t, report.Warnings, 1)
	require.Contains(t, report.Warnings[0], "missing product")
}

func TestEvaluateEmptyTableIsClean(t *testing.T) {
	gate := NewGate(&stubQuerier{}, zap.NewNop())

	report, err := gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Zero(t, report.TotalRows)
	require.Nil(t, report.EarliestDate)
}
