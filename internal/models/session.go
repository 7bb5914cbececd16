package models

import "time"

// Session is a timing-system "run" under an event (practice, qualifying,
// race). SessionID is assigned by the timing system; 999999 is the reserved
// "no session" sentinel and is never persisted here.
type Session struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	EventID         uint `gorm:"uniqueIndex:idx_event_session;not null"`
	SessionID       uint `gorm:"uniqueIndex:idx_event_session;not null"` // timing-system assigned
	Name            string `gorm:"size:128"`
	LocalTZOffset   int    // hours, may be negative
	IsLive          bool   `gorm:"default:false;index"`
	StartTime       time.Time
	EndTime         *time.Time
	LastUpdated     time.Time
}

// SessionResult is the persisted terminal record of a finalized session:
// the start time and the frozen SessionState + control logs at finalize.
type SessionResult struct {
	ID            uint `gorm:"primaryKey;autoIncrement"`
	EventID       uint `gorm:"uniqueIndex:idx_result_event_session;not null"`
	SessionID     uint `gorm:"uniqueIndex:idx_result_event_session;not null"`
	StartTime     time.Time
	TerminalState string `gorm:"type:mediumtext"` // JSON-encoded SessionState
	ControlLogs   string `gorm:"type:mediumtext"` // JSON-encoded per-car control logs at finalize
	CreatedAt     time.Time
}

// CarLapLog records one completed lap for a car within a session, streamed
// as laps complete (not batched at finalize).
type CarLapLog struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	EventID    uint `gorm:"index:idx_lap_event_session;not null"`
	SessionID  uint `gorm:"index:idx_lap_event_session;not null"`
	CarNumber  string `gorm:"size:16;index;not null"`
	LapNumber  int
	ElapsedMs  int64
	RecordedAt time.Time
}

// CarLastLap caches the most recent lap per car per session; archived/purged
// by the archive service, never read by the core pipeline directly (it is
// a reporting convenience table populated alongside CarLapLog).
type CarLastLap struct {
	EventID    uint   `gorm:"primaryKey"`
	SessionID  uint   `gorm:"primaryKey"`
	CarNumber  string `gorm:"primaryKey;size:16"`
	LapNumber  int
	ElapsedMs  int64
	RecordedAt time.Time
}

// FlagLog is a durable per-session audit trail of flag-interval transitions,
// written by the event processor on each flag change it applies. Read and
// purged by the archive service.
type FlagLog struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	EventID   uint `gorm:"index:idx_flag_event_session;not null"`
	SessionID uint `gorm:"index:idx_flag_event_session;not null"`
	Flag      string `gorm:"size:16;not null"`
	StartTime time.Time
	EndTime   *time.Time
}

// RelayLog is a raw-frame audit trail per relay connection, archived and
// purged by the archive service. The processor's recordRelayLine helper
// can insert rows, but no ingest path calls it, so nothing in this module
// writes RelayLog rows. Not read by the live pipeline.
type RelayLog struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	EventID      uint `gorm:"index;not null"`
	ConnectionID string `gorm:"size:64;index"`
	RawLine      string `gorm:"type:text"`
	ReceivedAt   time.Time
}
