package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, url string, pageSize int) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:    url,
		Timeout:    5 * time.Second,
		PageSize:   pageSize,
		MaxRetries: 2,
	}, zap.NewNop())
}

func collect(t *testing.T, seq func(func(RawRecord, error) bool)) ([]RawRecord, error) {
	t.Helper()
	var records []RawRecord
	for rec, err := range seq {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func listBody(ids ...string) string {
	hits := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]any{"_source": map[string]any{"complaint_id": id}})
	}
	body, _ := json.Marshal(hits)
	return string(body)
}

func envelopeBody(total int, ids ...string) string {
	hits := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]any{"_source": map[string]any{"complaint_id": id}})
	}
	body, _ := json.Marshal(map[string]any{
		"hits": map[string]any{
			"hits":  hits,
			"total": map[string]any{"value": total, "relation": "eq"},
		},
	})
	return string(body)
}

func ids(records []RawRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, fmt.Sprintf("%v", rec["complaint_id"]))
	}
	return out
}

func TestFetchNormalizesBothShapes(t *testing.T) {
	bodies := map[string]string{
		"list":     listBody("A1", "A2"),
		"envelope": envelopeBody(2, "A1", "A2"),
	}

	var results [][]string
	for name, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		client := testClient(t, srv.URL, 100)

		records, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
		srv.Close()
		require.NoError(t, err, "shape %s", name)
		results = append(results, ids(records))
	}

	require.Equal(t, results[0], results[1], "both shapes must yield the same sequence")
	require.Equal(t, []string{"A1", "A2"}, results[0])
}

func TestFetchPaginatesUntilTotal(t *testing.T) {
	pages := map[string]string{
		"0": envelopeBody(3, "A1", "A2"),
		"2": envelopeBody(3, "A3"),
	}
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frm := r.URL.Query().Get("frm")
		requested = append(requested, frm)
		fmt.Fprint(w, pages[frm])
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2)
	records, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
	require.NoError(t, err)
	require.Equal(t, []string{"A1", "A2", "A3"}, ids(records))
	require.Equal(t, []string{"0", "2"}, requested)
}

func TestFetchEmptyPageIsEndOfData(t *testing.T) {
	// Reported total says 1000 but the page comes back empty; that is the
	// end of data, not an error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeBody(1000))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 100)
	records, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFetchHonorsMaxRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		hits := make([]string, size)
		for i := range hits {
			hits[i] = fmt.Sprintf("R%d", i)
		}
		fmt.Fprint(w, envelopeBody(10000, hits...))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 100)
	records, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme", MaxRecords: 5}))
	require.NoError(t, err)
	require.Len(t, records, 5)
}

func TestFetchRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, listBody("A1"))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 100)
	records, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, ids(records))
	require.Equal(t, 2, calls)
}

func TestFetchExhaustedAfterPersistentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 100)
	_, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
	require.ErrorIs(t, err, ErrFetchExhausted)
}

func TestFetchMalformedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected": true}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 100)
	_, err := collect(t, client.Fetch(context.Background(), Query{Company: "acme"}))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listBody("A1"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := testClient(t, srv.URL, 100)
	_, err := collect(t, client.Fetch(ctx, Query{Company: "acme"}))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestDecodeTotalVariants(t *testing.T) {
	plain := []byte(`{"hits": {"hits": [], "total": 42}}`)
	pg, err := decodePage(plain)
	require.NoError(t, err)
	require.True(t, pg.hasTotal)
	require.Equal(t, 42, pg.total)

	object := []byte(`{"hits": {"hits": [], "total": {"value": 7}}}`)
	pg, err = decodePage(object)
	require.NoError(t, err)
	require.True(t, pg.hasTotal)
	require.Equal(t, 7, pg.total)
}
