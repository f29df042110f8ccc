package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is one normalized page of provider results. The provider is not
// consistent about its response shape, so everything is funneled
// through ParsePage before the pagination logic sees it.
type Page struct {
	Items    []json.RawMessage
	Total    int
	HasTotal bool
}

type envelope struct {
	Results []json.RawMessage `json:"results"`
	Data    []json.RawMessage `json:"data"`
	Paging  *struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"paging"`
}

// ParsePage normalizes the three observed body shapes: a bare array, an
// envelope with a results/data list and optional paging metadata, or a
// single object treated as one synthetic item.
func ParsePage(body []byte) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Page{}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page{}, fmt.Errorf("parse page: bare array: %w", err)
		}
		return Page{Items: items}, nil
	}

	if trimmed[0] != '{' {
		return Page{}, fmt.Errorf("parse page: unexpected body %q", previewBody(trimmed))
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		// The object does not match the envelope shape (e.g. a list
		// field holding a non-array). Treat it as a single record.
		return Page{Items: []json.RawMessage{json.RawMessage(trimmed)}}, nil
	}

	page := Page{}
	switch {
	case env.Results != nil:
		page.Items = env.Results
	case env.Data != nil:
		page.Items = env.Data
	default:
		page.Items = []json.RawMessage{json.RawMessage(trimmed)}
	}

	if env.Paging != nil {
		page.Total = env.Paging.Total
		page.HasTotal = true
	}

	return page, nil
}

func previewBody(body []byte) string {
	const max = 64
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
