package transform

import (
	"testing"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/fetch"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransformMapsFields(t *testing.T) {
	tr := New(zap.NewNop())

	records, failures, stats := tr.Transform([]fetch.RawRecord{{
		"complaint_id":            "C100",
		"date_received":           "2024-03-15",
		"product":                 "Credit card",
		"company":                 "Acme Bank",
		"company_response":        "Closed with explanation",
		"timely":                  "Yes",
		"date_sent_to_company":    "2024-03-16",
		"complaint_what_happened": "charged twice",
	}})

	require.Empty(t, failures)
	require.Equal(t, Stats{Attempted: 1, Succeeded: 1}, stats)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "C100", rec.ComplaintID)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.DateReceived)
	require.Equal(t, "Closed with explanation", rec.CompanyResponseToConsumer)
	require.Equal(t, "Yes", rec.TimelyResponse)
	require.NotNil(t, rec.CreatedDate)
	require.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), *rec.CreatedDate)
	require.NotNil(t, rec.UpdatedDate)
	require.Equal(t, rec.DateReceived, *rec.UpdatedDate)
}

func TestTransformDropsInvalidRecordsWithoutFailing(t *testing.T) {
	tr := New(zap.NewNop())

	records, failures, stats := tr.Transform([]fetch.RawRecord{
		{"complaint_id": "C1", "date_received": "2024-01-01"},
		{"date_received": "2024-01-02"},                     // missing id
		{"complaint_id": "C3"},                              // missing date
		{"complaint_id": "C4", "date_received": "tomorrow"}, // unparseable date
		{"complaint_id": "C5", "date_received": "2024-01-05"},
	})

	require.Equal(t, Stats{Attempted: 5, Succeeded: 2, Failed: 3}, stats)
	require.Len(t, failures, 3)

	// Output preserves input order.
	require.Equal(t, "C1", records[0].ComplaintID)
	require.Equal(t, "C5", records[1].ComplaintID)
}

func TestTransformEmptyBatch(t *testing.T) {
	tr := New(zap.NewNop())

	records, failures, stats := tr.Transform(nil)
	require.Empty(t, records)
	require.Empty(t, failures)
	require.Equal(t, Stats{}, stats)
}

func TestTransformJoinsListValues(t *testing.T) {
	tr := New(zap.NewNop())

	records, _, _ := tr.Transform([]fetch.RawRecord{{
		"complaint_id":  "C1",
		"date_received": "2024-01-01",
		"tags":          []any{"Older American", "Servicemember"},
	}})
	require.Len(t, records, 1)
	require.Equal(t, "Older American, Servicemember", records[0].Tags)
}

func TestTransformStringifiesNumericIDs(t *testing.T) {
	tr := New(zap.NewNop())

	records, _, _ := tr.Transform([]fetch.RawRecord{{
		"complaint_id":  float64(7654321),
		"date_received": "2024-01-01",
	}})
	require.Len(t, records, 1)
	require.Equal(t, "7654321", records[0].ComplaintID)
}
