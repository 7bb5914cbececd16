package processor

import (
	"context"
	"time"

	"github.com/zulandar/racetiming/internal/metrics"
	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	persistMaxAttempts = 3
	persistRetryDelay  = 200 * time.Millisecond
)

// persistWithRetry runs fn up to persistMaxAttempts times with a short
// fixed delay between attempts. A write that still fails after the retry
// budget is dropped rather than blocking the pipeline (§4.C failure
// semantics); the caller only learns about it through the db_write_failures
// metric, tagged by table.
func persistWithRetry(table string, fn func() error) {
	var lastErr error
	for attempt := 0; attempt < persistMaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return
		}
		time.Sleep(persistRetryDelay)
	}
	metrics.DBWriteFailures.WithLabelValues(table).Inc()
}

// recordLap persists a completed lap both as an immutable CarLapLog row and
// an upserted CarLastLap convenience row (§5).
func recordLap(db *gorm.DB, eventID, sessionID uint, lap LapCompletion) {
	now := time.Now().UTC()
	persistWithRetry("car_lap_logs", func() error {
		return db.Create(&models.CarLapLog{
			EventID: eventID, SessionID: sessionID,
			CarNumber: lap.CarNumber, LapNumber: lap.Lap, ElapsedMs: lap.ElapsedMs,
			RecordedAt: now,
		}).Error
	})

	persistWithRetry("car_last_laps", func() error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "session_id"}, {Name: "car_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"lap_number", "elapsed_ms", "recorded_at"}),
		}).Create(&models.CarLastLap{
			EventID: eventID, SessionID: sessionID,
			CarNumber: lap.CarNumber, LapNumber: lap.Lap, ElapsedMs: lap.ElapsedMs,
			RecordedAt: now,
		}).Error
	})
}

// recordFlagChange mirrors a flag interval into the durable FlagLog audit
// trail as it happens, rather than only at session finalize, so a crashed
// processor doesn't lose mid-session flag history (§5).
func recordFlagChange(db *gorm.DB, eventID, sessionID uint, flag string, startTime time.Time) {
	persistWithRetry("flag_logs", func() error {
		return db.Create(&models.FlagLog{
			EventID: eventID, SessionID: sessionID, Flag: flag, StartTime: startTime,
		}).Error
	})
}

// closeOpenFlagLog stamps EndTime on the most recent open FlagLog row for
// this session, called right before a new one is recorded.
func closeOpenFlagLog(db *gorm.DB, eventID, sessionID uint, endTime time.Time) {
	persistWithRetry("flag_logs", func() error {
		return db.Model(&models.FlagLog{}).
			Where("event_id = ? AND session_id = ? AND end_time IS NULL", eventID, sessionID).
			Update("end_time", endTime).Error
	})
}

// recordRelayLine appends a raw-frame audit entry; failures here are
// diagnostics-only and always dropped rather than retried.
func recordRelayLine(ctx context.Context, db *gorm.DB, eventID uint, connectionID, line string) {
	db.WithContext(ctx).Create(&models.RelayLog{EventID: eventID, ConnectionID: connectionID, RawLine: line, ReceivedAt: time.Now().UTC()})
}
