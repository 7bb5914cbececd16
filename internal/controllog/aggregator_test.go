package controllog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

var errBoom = errors.New("boom")

type stubSource struct {
	logs map[string]sessionstate.CarControlLogs
	err  error
}

func (s *stubSource) Fetch(context.Context, uint) (map[string]sessionstate.CarControlLogs, error) {
	return s.logs, s.err
}

func TestPoll_FirstPollReportsEveryCarAsChanged(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	src := &stubSource{logs: map[string]sessionstate.CarControlLogs{
		"42": {Number: "42", Warnings: 1, Entries: []sessionstate.ControlLogEntry{{Timestamp: time.Unix(0, 0), Text: "black flag warning"}}},
	}}
	agg := New(1, src, fake)

	updates, err := agg.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	penalties, err := fake.CarPenalties(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, penalties["42"].Warnings)
}

func TestPoll_NoChangeProducesNoUpdates(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	src := &stubSource{logs: map[string]sessionstate.CarControlLogs{
		"42": {Number: "42", Warnings: 1},
	}}
	agg := New(1, src, fake)

	_, err := agg.Poll(ctx)
	require.NoError(t, err)

	updates, err := agg.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, updates)
}

func TestPoll_CarNoLongerPresentIsGCed(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	src := &stubSource{logs: map[string]sessionstate.CarControlLogs{"42": {Number: "42"}}}
	agg := New(1, src, fake)
	_, err := agg.Poll(ctx)
	require.NoError(t, err)

	_, ok := agg.CarLog("42")
	require.True(t, ok)

	src.logs = map[string]sessionstate.CarControlLogs{}
	_, err = agg.Poll(ctx)
	require.NoError(t, err)

	_, ok = agg.CarLog("42")
	require.False(t, ok)
}

func TestPoll_FetchErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	src := &stubSource{err: errBoom}
	agg := New(1, src, fake)

	_, err := agg.Poll(ctx)
	require.Error(t, err)
}

func TestNewSource_UnknownTypeFallsBackToNone(t *testing.T) {
	src := NewSource("some-unknown-vendor", nil, "")
	logs, err := src.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, logs)
}
