package sessionmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zulandar/racetiming/internal/models"
	"github.com/zulandar/racetiming/internal/sessionstate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}, &models.SessionResult{}))
	return db
}

func TestOnSessionChange_ReservedSessionIsNoOp(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)

	err := m.OnSessionChange(context.Background(), sessionstate.ReservedSessionID, "", 0, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateIdle, m.State())

	var count int64
	db.Model(&models.Session{}).Count(&count)
	require.Zero(t, count)
}

func TestOnSessionChange_IdleToActivePersistsSession(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)

	err := m.OnSessionChange(context.Background(), 7, "Race 1", -5, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateActive, m.State())
	require.Equal(t, uint(7), m.SessionID())

	var row models.Session
	require.NoError(t, db.Where("event_id = ? AND session_id = ?", 1, 7).First(&row).Error)
	require.True(t, row.IsLive)
	require.Equal(t, "Race 1", row.Name)
}

func TestOnSessionChange_NewIDFinalizesPriorThenAdoptsNew(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)
	ctx := context.Background()

	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))
	require.NoError(t, m.OnSessionChange(ctx, 8, "Race 2", 0, &sessionstate.SessionState{EventID: 1, SessionID: 7}, nil))

	require.Equal(t, StateActive, m.State())
	require.Equal(t, uint(8), m.SessionID())

	var prior models.Session
	require.NoError(t, db.Where("event_id = ? AND session_id = ?", 1, 7).First(&prior).Error)
	require.False(t, prior.IsLive)
	require.NotNil(t, prior.EndTime)

	var result models.SessionResult
	require.NoError(t, db.Where("event_id = ? AND session_id = ?", 1, 7).First(&result).Error)
	require.Contains(t, result.TerminalState, `"SessionID":7`)

	var current models.Session
	require.NoError(t, db.Where("event_id = ? AND session_id = ?", 1, 8).First(&current).Error)
	require.True(t, current.IsLive)
}

func TestEvaluate_ChequeredAfterGreenEntersFinishing(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)
	ctx := context.Background()
	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))

	_, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagGreen, LocalTimeOfDay: "13:00:00.000", CarLastLaps: map[string]int{"42": 10}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StateActive, m.State())

	finalized, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:00.000", CarLastLaps: map[string]int{"42": 11}}, nil, nil)
	require.NoError(t, err)
	require.False(t, finalized)
	require.Equal(t, StateFinishing, m.State())
}

func TestEvaluate_FinalizesAfterGraceWindowWithNoFurtherLaps(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)
	ctx := context.Background()
	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))

	_, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagGreen, LocalTimeOfDay: "13:00:00.000", CarLastLaps: map[string]int{"42": 10}}, nil, nil)
	require.NoError(t, err)

	finalized, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:00.000", CarLastLaps: map[string]int{"42": 11}}, nil, nil)
	require.NoError(t, err)
	require.False(t, finalized)

	// No lap changes from the snapshot; 61s later the grace window expires.
	finalized, err = m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:02:01.000", CarLastLaps: map[string]int{"42": 11}}, &sessionstate.SessionState{EventID: 1, SessionID: 7}, nil)
	require.NoError(t, err)
	require.True(t, finalized)
	require.Equal(t, StateFinalized, m.State())
}

func TestEvaluate_LapChangeDuringFinishingResetsGraceWindow(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)
	ctx := context.Background()
	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))

	_, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagGreen, LocalTimeOfDay: "13:00:00.000", CarLastLaps: map[string]int{"42": 10}}, nil, nil)
	require.NoError(t, err)
	_, err = m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:00.000", CarLastLaps: map[string]int{"42": 11}}, nil, nil)
	require.NoError(t, err)

	// A car completes one more lap 30s in — that resets the clock.
	finalized, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:30.000", CarLastLaps: map[string]int{"42": 12}}, nil, nil)
	require.NoError(t, err)
	require.False(t, finalized)

	// Only 31s after the updated lap change — should still be finishing.
	finalized, err = m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:02:01.000", CarLastLaps: map[string]int{"42": 12}}, nil, nil)
	require.NoError(t, err)
	require.False(t, finalized)
	require.Equal(t, StateFinishing, m.State())
}

func TestEvaluate_StoppedAdvancingEventTimeFinalizesImmediately(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)
	ctx := context.Background()
	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))
	_, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagGreen, LocalTimeOfDay: "13:00:00.000", CarLastLaps: map[string]int{"42": 10}}, nil, nil)
	require.NoError(t, err)
	_, err = m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:00.000", CarLastLaps: map[string]int{"42": 11}}, nil, nil)
	require.NoError(t, err)

	// Same event time as last tick: the relay's clock has stalled.
	finalized, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:01:00.000", CarLastLaps: map[string]int{"42": 11}}, nil, nil)
	require.NoError(t, err)
	require.True(t, finalized)
}

func TestEvaluate_IdleMonitorIgnoresTicks(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 0)

	finalized, err := m.Evaluate(context.Background(), Tick{Flag: sessionstate.FlagCheckered, LocalTimeOfDay: "13:00:00.000"}, nil, nil)
	require.NoError(t, err)
	require.False(t, finalized)
	require.Equal(t, StateIdle, m.State())
}

func TestPersistLastUpdated_DebouncedCallDoesNotBlock(t *testing.T) {
	db := newTestDB(t)
	m := New(db, 1, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, m.OnSessionChange(ctx, 7, "Race 1", 0, nil, nil))

	_, err := m.Evaluate(ctx, Tick{Flag: sessionstate.FlagGreen, LocalTimeOfDay: "13:00:00.000", CarLastLaps: map[string]int{"42": 1}}, nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var row models.Session
		db.Where("event_id = ? AND session_id = ?", 1, 7).First(&row)
		return row.LastUpdated.After(row.StartTime) || row.LastUpdated.Equal(row.StartTime)
	}, time.Second, 5*time.Millisecond)
}
