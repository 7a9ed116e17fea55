package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The API answers in one of two shapes: a bare JSON array of hit objects, or
// an Elasticsearch-style envelope with the hits under hits.hits and a sibling
// total. Proxies between us and the API have been seen flipping between the
// two, so the shape is probed per page, not once per run.

type page struct {
	records  []RawRecord
	total    int
	hasTotal bool
}

type hit struct {
	Source RawRecord `json:"_source"`
}

type envelope struct {
	Hits *struct {
		Hits  []hit           `json:"hits"`
		Total json.RawMessage `json:"total"`
	} `json:"hits"`
}

func decodePage(body []byte) (page, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return page{}, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	switch trimmed[0] {
	case '[':
		var hits []hit
		if err := json.Unmarshal(trimmed, &hits); err != nil {
			return page{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return page{records: sources(hits)}, nil

	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return page{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if env.Hits == nil {
			return page{}, fmt.Errorf("%w: object without hits key", ErrMalformedResponse)
		}
		total, hasTotal, err := decodeTotal(env.Hits.Total)
		if err != nil {
			return page{}, err
		}
		return page{records: sources(env.Hits.Hits), total: total, hasTotal: hasTotal}, nil

	default:
		return page{}, fmt.Errorf("%w: unexpected leading byte %q", ErrMalformedResponse, trimmed[0])
	}
}

// decodeTotal accepts both total encodings the API has used: a plain integer
// and an object {"value": n, "relation": ...}.
func decodeTotal(raw json.RawMessage) (int, bool, error) {
	if len(raw) == 0 {
		return 0, false, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}

	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, false, fmt.Errorf("%w: unreadable total: %v", ErrMalformedResponse, err)
	}
	return obj.Value, true, nil
}

func sources(hits []hit) []RawRecord {
	records := make([]RawRecord, 0, len(hits))
	for _, h := range hits {
		if h.Source == nil {
			records = append(records, RawRecord{})
			continue
		}
		records = append(records, h.Source)
	}
	return records
}
