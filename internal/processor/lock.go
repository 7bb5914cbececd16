package processor

import (
	"fmt"
	"time"

	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaleLockTTL is how long a processor's ownership of an event is honored
// without a renewal before another worker may steal it. It tracks the
// orchestrator's own heartbeat-expiry window (§4.H) so a crashed processor
// doesn't block a restart indefinitely.
const StaleLockTTL = 10 * time.Minute

// AcquireEventLock claims exclusive ownership of an event's processing
// pipeline for ownerID. It succeeds if the event is unowned, already owned
// by ownerID (a renewal), or the existing lock is older than StaleLockTTL.
// Adapted from internal/engine's SELECT ... FOR UPDATE claim pattern,
// generalized from a car-queue claim to a singleton per-event lock.
func AcquireEventLock(db *gorm.DB, eventID uint, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("processor: ownerID is required")
	}

	acquired := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var ev models.Event
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", eventID).First(&ev)
		if result.Error != nil {
			return fmt.Errorf("lock event %d: %w", eventID, result.Error)
		}

		stale := ev.ProcessorLockedAt == nil || time.Since(*ev.ProcessorLockedAt) > StaleLockTTL
		if ev.ProcessorOwner != "" && ev.ProcessorOwner != ownerID && !stale {
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Event{}).Where("id = ?", eventID).
			Updates(map[string]any{"processor_owner": ownerID, "processor_locked_at": now}).Error; err != nil {
			return fmt.Errorf("claim event %d: %w", eventID, err)
		}
		acquired = true
		return nil
	})
	return acquired, err
}

// RenewEventLock refreshes the lock timestamp so a live processor is never
// mistaken for stale by a concurrent AcquireEventLock call.
func RenewEventLock(db *gorm.DB, eventID uint, ownerID string) error {
	now := time.Now().UTC()
	result := db.Model(&models.Event{}).
		Where("id = ? AND processor_owner = ?", eventID, ownerID).
		Update("processor_locked_at", now)
	if result.Error != nil {
		return fmt.Errorf("processor: renew lock event %d: %w", eventID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("processor: renew lock event %d: lock no longer held by %s", eventID, ownerID)
	}
	return nil
}

// ReleaseEventLock clears ownership so the orchestrator can reassign the
// event immediately rather than waiting out StaleLockTTL.
func ReleaseEventLock(db *gorm.DB, eventID uint, ownerID string) error {
	err := db.Model(&models.Event{}).
		Where("id = ? AND processor_owner = ?", eventID, ownerID).
		Updates(map[string]any{"processor_owner": "", "processor_locked_at": nil}).Error
	if err != nil {
		return fmt.Errorf("processor: release lock event %d: %w", eventID, err)
	}
	return nil
}
