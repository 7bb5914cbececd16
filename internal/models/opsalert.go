package models

import "time"

// OpsAlert is an operator-facing notification record: an escalation,
// control-log penalty spike, or archive failure. The table is created by
// db.AutoMigrate; no package in this module writes or reads its rows.
type OpsAlert struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Source       string    `gorm:"size:32;not null"` // "controllog", "archive", "orchestrator"
	EventID      uint      `gorm:"index"`
	CarNumber    string    `gorm:"size:16"`
	Subject      string    `gorm:"size:256;not null"`
	Body         string    `gorm:"type:text"`
	Priority     string    `gorm:"size:8;default:normal"` // "normal" or "urgent"
	Acknowledged bool      `gorm:"default:false;index"`
	CreatedAt    time.Time
}
