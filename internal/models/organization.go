package models

// Organization is the tenant that owns events. Relays authenticate as
// belonging to one organization (claim "azp"); sessions may only be created
// for events the relay's organization owns.
type Organization struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ShortName       string `gorm:"size:32;uniqueIndex;not null"`
	ControlLogType  string `gorm:"size:32"` // empty = no control-log worker for this org's events
}
