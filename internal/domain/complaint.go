package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateOnly is the canonical layout for date_received in staging artifacts.
const DateOnly = "2006-01-02"

// ComplaintRecord is one consumer complaint as stored in the warehouse.
type ComplaintRecord struct {
	ComplaintID               string     `json:"complaint_id"`
	DateReceived              time.Time  `json:"date_received"`
	Product                   string     `json:"product"`
	SubProduct                string     `json:"sub_product"`
	Issue                     string     `json:"issue"`
	SubIssue                  string     `json:"sub_issue"`
	Company                   string     `json:"company"`
	State                     string     `json:"state"`
	ZipCode                   string     `json:"zip_code"`
	Tags                      string     `json:"tags"`
	ConsumerConsentProvided   string     `json:"consumer_consent_provided"`
	SubmittedVia              string     `json:"submitted_via"`
	CompanyResponseToConsumer string     `json:"company_response_to_consumer"`
	TimelyResponse            string     `json:"timely_response"`
	ConsumerDisputed          string     `json:"consumer_disputed"`
	ComplaintWhatHappened     string     `json:"complaint_what_happened"`
	CompanyPublicResponse     string     `json:"company_public_response"`
	CreatedDate               *time.Time `json:"created_date,omitempty"`
	UpdatedDate               *time.Time `json:"updated_date,omitempty"`
}

// CSVHeader lists the staging artifact columns in their fixed order. The
// warehouse loader decodes rows positionally against this header, so the
// order is part of the artifact format.
var CSVHeader = []string{
	"complaint_id",
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

// CSVRow renders the record as one staging artifact row.
func (c ComplaintRecord) CSVRow() []string {
	return []string{
		c.ComplaintID,
		c.DateReceived.Format(DateOnly),
		c.Product,
		c.SubProduct,
		c.Issue,
		c.SubIssue,
		c.Company,
		c.State,
		c.ZipCode,
		c.Tags,
		c.ConsumerConsentProvided,
		c.SubmittedVia,
		c.CompanyResponseToConsumer,
		c.TimelyResponse,
		c.ConsumerDisputed,
		c.ComplaintWhatHappened,
		c.CompanyPublicResponse,
		formatOptionalTime(c.CreatedDate),
		formatOptionalTime(c.UpdatedDate),
	}
}

// ComplaintFromCSVRow decodes one staging artifact row.
func ComplaintFromCSVRow(row []string) (ComplaintRecord, error) {
	if len(row) != len(CSVHeader) {
		return ComplaintRecord{}, fmt.Errorf("expected %d columns, got %d", len(CSVHeader), len(row))
	}

	received, err := time.Parse(DateOnly, row[1])
	if err != nil {
		return ComplaintRecord{}, fmt.Errorf("invalid date_received %q: %w", row[1], err)
	}

	created, err := parseOptionalTime(row[17])
	if err != nil {
		return ComplaintRecord{}, fmt.Errorf("invalid created_date %q: %w", row[17], err)
	}
	updated, err := parseOptionalTime(row[18])
	if err != nil {
		return ComplaintRecord{}, fmt.Errorf("invalid updated_date %q: %w", row[18], err)
	}

	return ComplaintRecord{
		ComplaintID:               row[0],
		DateReceived:              received,
		Product:                   row[2],
		SubProduct:                row[3],
		Issue:                     row[4],
		SubIssue:                  row[5],
		Company:                   row[6],
		State:                     row[7],
		ZipCode:                   row[8],
		Tags:                      row[9],
		ConsumerConsentProvided:   row[10],
		SubmittedVia:              row[11],
		CompanyResponseToConsumer: row[12],
		TimelyResponse:            row[13],
		ConsumerDisputed:          row[14],
		ComplaintWhatHappened:     row[15],
		CompanyPublicResponse:     row[16],
		CreatedDate:               created,
		UpdatedDate:               updated,
	}, nil
}

// PartitionKey normalizes a company name into the key used for staging
// artifact names and warehouse partition scoping: lowercased, spaces
// replaced with underscores.
func PartitionKey(company string) string {
	key := strings.ToLower(strings.TrimSpace(company))
	return strings.ReplaceAll(key, " ", "_")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
