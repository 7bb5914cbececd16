package controllog

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDoer struct {
	status int
	body   string
	err    error
}

func (d stubDoer) Do(req *http.Request) (*http.Response, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(bytes.NewBufferString(d.body)),
	}, nil
}

func TestGenericJSONSource_AggregatesRecordsPerCar(t *testing.T) {
	body := `[
		{"carNumber":"42","timestamp":"2026-07-31T00:00:00Z","text":"black flag","warning":true},
		{"carNumber":"42","timestamp":"2026-07-31T00:05:00Z","text":"drive-through","penaltyLap":true},
		{"carNumber":"7","timestamp":"2026-07-31T00:01:00Z","text":"warning"}
	]`
	src := newGenericJSONSource(stubDoer{status: http.StatusOK, body: body}, "http://cl.example")

	logs, err := src.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, logs["42"].Entries, 2)
	require.Equal(t, 1, logs["42"].Warnings)
	require.Equal(t, 1, logs["42"].Laps)
	require.Len(t, logs["7"].Entries, 1)
}

func TestGenericJSONSource_ServerErrorIsWrapped(t *testing.T) {
	src := newGenericJSONSource(stubDoer{status: http.StatusInternalServerError, body: ""}, "http://cl.example")
	_, err := src.Fetch(context.Background(), 1)
	require.Error(t, err)
}
