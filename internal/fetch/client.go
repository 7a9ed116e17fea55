package fetch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrMalformedResponse is returned when the API answers with a body that
	// matches neither the bare-list shape nor the hits envelope shape. It
	// aborts the current partition's fetch only.
	ErrMalformedResponse = errors.New("malformed API response")

	// ErrFetchExhausted is returned when a page request keeps failing after
	// the retry ceiling. The caller skips the partition for this run.
	ErrFetchExhausted = errors.New("fetch retries exhausted")
)

// MaxPageSize is the documented per-request record limit of the complaints API.
const MaxPageSize = 10000

const defaultUserAgent = "Mozilla/5.0 (compatible; ConsumerComplaintETL/1.0; Go/resty)"

// Config controls the API client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	PageSize   int
	MaxRetries int
	UserAgent  string
}

// Query scopes one partition fetch. Company and date filtering are applied
// server-side via query parameters; the client never filters locally.
type Query struct {
	Company    string
	DateMin    time.Time
	DateMax    time.Time
	MaxRecords int
}

// Client pages through the consumer complaints API, normalizing both
// response shapes into one record stream.
type Client struct {
	http     *resty.Client
	pageSize int
	logger   *zap.Logger
}

// NewClient builds an API client. Retries with exponential backoff on 429 and
// transient server errors are handled by the underlying resty client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		// The API answers 403 to requests without a browser-ish user agent.
		cfg.UserAgent = defaultUserAgent
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "application/json")
	client.SetRetryCount(cfg.MaxRetries)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(20 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &Client{
		http:     client,
		pageSize: cfg.PageSize,
		logger:   logger,
	}
}

// RawRecord is one complaint as returned by the API, prior to validation.
type RawRecord map[string]any

// Fetch yields the partition's records lazily, advancing page by page until
// the reported total is reached, the MaxRecords cap is hit, or a page comes
// back short or empty. The sequence is finite and not restartable.
func (c *Client) Fetch(ctx context.Context, q Query) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		frm := 0
		fetched := 0

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			size := c.pageSize
			if q.MaxRecords > 0 && q.MaxRecords-fetched < size {
				size = q.MaxRecords - fetched
			}

			pg, err := c.fetchPage(ctx, q, frm, size)
			if err != nil {
				yield(nil, err)
				return
			}

			if len(pg.records) == 0 {
				// A reported total above what we actually received is
				// end-of-data, not an error.
				c.logger.Info("no more complaints to fetch",
					zap.String("company", q.Company),
					zap.Int("fetched", fetched))
				return
			}

			for _, rec := range pg.records {
				if !yield(rec, nil) {
					return
				}
				fetched++
				if q.MaxRecords > 0 && fetched >= q.MaxRecords {
					c.logger.Info("reached max records cap",
						zap.String("company", q.Company),
						zap.Int("max_records", q.MaxRecords))
					return
				}
			}

			if pg.hasTotal && fetched >= pg.total {
				return
			}
			if len(pg.records) < size {
				// Short page means the source ran out of data.
				return
			}
			frm += size
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, q Query, frm, size int) (page, error) {
	req := c.http.R().SetContext(ctx).SetQueryParams(map[string]string{
		"size":    strconv.Itoa(size),
		"frm":     strconv.Itoa(frm),
		"sort":    "created_date_desc",
		"format":  "json",
		"no_aggs": "true",
	})
	if q.Company != "" {
		req.SetQueryParam("search_term", q.Company)
		req.SetQueryParam("field", "company")
	}
	if !q.DateMin.IsZero() {
		req.SetQueryParam("date_received_min", q.DateMin.Format("2006-01-02"))
	}
	if !q.DateMax.IsZero() {
		req.SetQueryParam("date_received_max", q.DateMax.Format("2006-01-02"))
	}

	resp, err := req.Get("")
	if err != nil {
		return page{}, fmt.Errorf("%w: %v", ErrFetchExhausted, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
		// resty already retried; whatever came back last is terminal.
		return page{}, fmt.Errorf("%w: status %d after retries", ErrFetchExhausted, resp.StatusCode())
	}
	if resp.IsError() {
		return page{}, fmt.Errorf("complaints API returned status %d", resp.StatusCode())
	}

	pg, err := decodePage(resp.Body())
	if err != nil {
		return page{}, err
	}

	c.logger.Debug("fetched page",
		zap.String("company", q.Company),
		zap.Int("frm", frm),
		zap.Int("records", len(pg.records)),
		zap.Int("total", pg.total))

	return pg, nil
}
