package models

import "time"

// Event is a race weekend scoped to an Organization.
type Event struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	OrgID        uint      `gorm:"index;not null"`
	Name         string    `gorm:"size:256;not null"`
	StartDate    time.Time
	EndDate      time.Time
	IsLive       bool `gorm:"default:false;index"`
	IsArchived   bool `gorm:"default:false;index"`
	IsSimulation bool `gorm:"default:false;index"`

	// ProcessorOwner and ProcessorLockedAt record which worker currently
	// owns this event's processing pipeline, so the orchestrator never
	// double-starts a processor for the same event (§4.C, §4.H).
	ProcessorOwner    string `gorm:"size:128;index"`
	ProcessorLockedAt *time.Time
}
