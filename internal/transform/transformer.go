package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/consumerdata/ccdb-etl/internal/domain"
	"github.com/consumerdata/ccdb-etl/internal/fetch"

	"go.uber.org/zap"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// Stats summarizes one transform pass for observability.
type Stats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ValidationFailure records one dropped record. Failures are counted, never
// raised; a malformed record must not abort its batch.
type ValidationFailure struct {
	ComplaintID string `json:"complaint_id,omitempty"`
	Reason      string `json:"reason"`
}

// Transformer validates raw API records and normalizes them into
// ComplaintRecords.
type Transformer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform maps raw records to the canonical row schema, preserving input
// order. Records missing complaint_id or a parseable date_received are
// dropped and reported. An empty result is a legitimate outcome.
func (t *Transformer) Transform(records []fetch.RawRecord) ([]domain.ComplaintRecord, []ValidationFailure, Stats) {
	out := make([]domain.ComplaintRecord, 0, len(records))
	var failures []ValidationFailure
	stats := Stats{Attempted: len(records)}

	for _, raw := range records {
		rec, err := transformOne(raw)
		if err != nil {
			failures = append(failures, ValidationFailure{
				ComplaintID: stringField(raw, "complaint_id"),
				Reason:      err.Error(),
			})
			stats.Failed++
			continue
		}
		out = append(out, rec)
		stats.Succeeded++
	}

	t.logger.Info("transform complete",
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed))

	return out, failures, stats
}

func transformOne(raw fetch.RawRecord) (domain.ComplaintRecord, error) {
	id := stringField(raw, "complaint_id")
	if id == "" {
		return domain.ComplaintRecord{}, fmt.Errorf("missing complaint_id")
	}

	receivedRaw := stringField(raw, "date_received")
	if receivedRaw == "" {
		return domain.ComplaintRecord{}, fmt.Errorf("missing date_received")
	}
	received, ok := parseTime(receivedRaw)
	if !ok {
		return domain.ComplaintRecord{}, fmt.Errorf("unparseable date_received %q", receivedRaw)
	}

	rec := domain.ComplaintRecord{
		ComplaintID:               id,
		DateReceived:              received,
		Product:                   stringField(raw, "product"),
		SubProduct:                stringField(raw, "sub_product"),
		Issue:                     stringField(raw, "issue"),
		SubIssue:                  stringField(raw, "sub_issue"),
		Company:                   stringField(raw, "company"),
		State:                     stringField(raw, "state"),
		ZipCode:                   stringField(raw, "zip_code"),
		Tags:                      stringField(raw, "tags"),
		ConsumerConsentProvided:   stringField(raw, "consumer_consent_provided"),
		SubmittedVia:              stringField(raw, "submitted_via"),
		CompanyResponseToConsumer: stringField(raw, "company_response"),
		TimelyResponse:            stringField(raw, "timely"),
		ConsumerDisputed:          stringField(raw, "consumer_disputed"),
		ComplaintWhatHappened:     stringField(raw, "complaint_what_happened"),
		CompanyPublicResponse:     stringField(raw, "company_public_response"),
	}

	// The source has no real created/updated audit columns; the warehouse
	// schema reuses date_sent_to_company and date_received for them.
	if created, ok := parseTime(stringField(raw, "date_sent_to_company")); ok {
		rec.CreatedDate = &created
	}
	updated := received
	rec.UpdatedDate = &updated

	return rec, nil
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stringField renders a raw JSON value as a string: lists are joined with
// ", " and numbers lose any float formatting artifacts.
func stringField(raw fetch.RawRecord, key string) string {
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
