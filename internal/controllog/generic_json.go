package controllog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zulandar/racetiming/internal/sessionstate"
)

// HTTPDoer is the subset of *http.Client the generic-json source needs,
// narrowed for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// genericJSONSource polls a sanctioning body's HTTP endpoint that returns
// a flat JSON array of incident records; no vendor-specific parsing beyond
// the field names below.
type genericJSONSource struct {
	client  HTTPDoer
	baseURL string
}

func newGenericJSONSource(client HTTPDoer, baseURL string) Source {
	return &genericJSONSource{client: client, baseURL: baseURL}
}

type genericJSONRecord struct {
	CarNumber string    `json:"carNumber"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Warning   bool      `json:"warning"`
	Penalty   bool      `json:"penaltyLap"`
}

func (s *genericJSONSource) Fetch(ctx context.Context, eventID uint) (map[string]sessionstate.CarControlLogs, error) {
	url := fmt.Sprintf("%s/events/%d/control-log", s.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("controllog: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("controllog: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controllog: %s returned %d", url, resp.StatusCode)
	}

	var records []genericJSONRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("controllog: decode response: %w", err)
	}

	out := make(map[string]sessionstate.CarControlLogs)
	for _, r := range records {
		cl := out[r.CarNumber]
		cl.Number = r.CarNumber
		cl.Entries = append(cl.Entries, sessionstate.ControlLogEntry{Timestamp: r.Timestamp, Text: r.Text})
		if r.Warning {
			cl.Warnings++
		}
		if r.Penalty {
			cl.Laps++
		}
		out[r.CarNumber] = cl
	}
	return out, nil
}
