package driverenrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

func TestApplyDriverInfo_ByCarNumber(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})
	store.UpdateCar("42", func(c *sessionstate.CarPosition) {})

	patch, err := e.ApplyDriverInfo(ctx, store, sessionstate.DriverInfo{
		EventID: 1, CarNumber: "42", TransponderID: 900, DriverID: "d1", DriverName: "Alice",
	})
	require.NoError(t, err)
	require.NotNil(t, patch.DriverName)
	require.Equal(t, "Alice", *patch.DriverName)

	snap := store.Snapshot()
	require.Equal(t, "Alice", snap.FindCar("42").DriverName)
}

func TestApplyDriverInfo_ByTransponderWhenCarNumberMissing(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})
	store.UpdateCar("7", func(c *sessionstate.CarPosition) { c.TransponderID = 555 })

	patch, err := e.ApplyDriverInfo(ctx, store, sessionstate.DriverInfo{
		EventID: 1, TransponderID: 555, DriverID: "d2", DriverName: "Bob",
	})
	require.NoError(t, err)
	require.Equal(t, "7", patch.Number)
}

func TestApplyDriverInfo_DropsWhenUnresolvable(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})

	patch, err := e.ApplyDriverInfo(ctx, store, sessionstate.DriverInfo{EventID: 1})
	require.NoError(t, err)
	require.True(t, patch.IsEmpty())
}

func TestApplyDriverInfo_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})

	info := sessionstate.DriverInfo{EventID: 1, CarNumber: "42", DriverID: "d1", DriverName: "Alice"}
	_, err := e.ApplyDriverInfo(ctx, store, info)
	require.NoError(t, err)

	patch2, err := e.ApplyDriverInfo(ctx, store, info)
	require.NoError(t, err)
	require.True(t, patch2.IsEmpty())
}

func TestSweep_ClearsDriverWhenCacheEntryGone(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})
	store.UpdateCar("42", func(c *sessionstate.CarPosition) {
		c.DriverID = "stale"
		c.DriverName = "Stale Driver"
	})

	patches, err := e.Sweep(ctx, 1, store)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	require.Equal(t, "", *patches[0].DriverID)

	snap := store.Snapshot()
	require.Equal(t, "", snap.FindCar("42").DriverID)
}

func TestSweep_NoChangeWhenCacheMatchesState(t *testing.T) {
	ctx := context.Background()
	fake := bus.NewFake()
	e := New(fake)
	store := sessionstate.NewStore(&sessionstate.SessionState{EventID: 1, SessionID: 10})

	_, err := e.ApplyDriverInfo(ctx, store, sessionstate.DriverInfo{EventID: 1, CarNumber: "42", DriverID: "d1", DriverName: "Alice"})
	require.NoError(t, err)

	patches, err := e.Sweep(ctx, 1, store)
	require.NoError(t, err)
	require.Empty(t, patches)
}
