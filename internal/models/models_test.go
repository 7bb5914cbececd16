package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestAutoMigrate verifies every persisted model in this package can be
// migrated together without conflicting indexes or column definitions.
func TestAutoMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&Organization{},
		&Event{},
		&Session{},
		&SessionResult{},
		&CarLapLog{},
		&CarLastLap{},
		&FlagLog{},
		&RelayLog{},
		&OpsAlert{},
	)
	require.NoError(t, err)
}

func TestSession_ReservedSentinelIsJustAnInt(t *testing.T) {
	// SessionID is an unsigned int column; the reserved sentinel 999999 fits
	// without special-casing the column type. Enforcement lives in
	// internal/sessionstate, not here.
	s := Session{SessionID: 999999}
	require.Equal(t, uint(999999), s.SessionID)
}
