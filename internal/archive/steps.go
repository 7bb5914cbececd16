package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zulandar/racetiming/internal/models"
	"gorm.io/gorm"
)

// archiveEvent runs every archive step for one event, in the order §4.I
// requires: logs, then laps per session, then device data, then flags per
// session, then competitor metadata. The first failing step aborts the
// event (the caller decides whether to flip is_archived), but never
// touches another event.
func (s *Service) archiveEvent(ctx context.Context, event models.Event, org models.Organization) error {
	if err := s.archiveLogs(ctx, event, org); err != nil {
		return fmt.Errorf("logs: %w", err)
	}
	sessionIDs, err := s.sessionIDsFor(event.ID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, sid := range sessionIDs {
		if err := s.archiveLaps(ctx, event, org, sid); err != nil {
			return fmt.Errorf("laps (session %d): %w", sid, err)
		}
	}
	if err := s.archiveDeviceData(ctx, event, org); err != nil {
		return fmt.Errorf("device data: %w", err)
	}
	for _, sid := range sessionIDs {
		if err := s.archiveFlags(ctx, event, org, sid); err != nil {
			return fmt.Errorf("flags (session %d): %w", sid, err)
		}
	}
	if err := s.archiveCompetitors(ctx, event, org); err != nil {
		return fmt.Errorf("competitors: %w", err)
	}
	return nil
}

func (s *Service) sessionIDsFor(eventID uint) ([]uint, error) {
	var sessions []models.Session
	if err := s.db.Where("event_id = ?", eventID).Find(&sessions).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.SessionID
	}
	return ids, nil
}

func (s *Service) archiveLogs(ctx context.Context, event models.Event, org models.Organization) error {
	var logs []models.RelayLog
	if err := s.db.Where("event_id = ?", event.ID).Find(&logs).Error; err != nil {
		return fmt.Errorf("query relay logs: %w", err)
	}
	return s.putJSON(ctx, logsKey(org.ShortName, event.ID), logs)
}

func (s *Service) archiveLaps(ctx context.Context, event models.Event, org models.Organization, sessionID uint) error {
	var laps []models.CarLapLog
	if err := s.db.Where("event_id = ? AND session_id = ?", event.ID, sessionID).
		Order("lap_number asc").Find(&laps).Error; err != nil {
		return fmt.Errorf("query laps: %w", err)
	}
	return s.putJSON(ctx, lapsKey(org.ShortName, event.ID, sessionID), laps)
}

func (s *Service) archiveFlags(ctx context.Context, event models.Event, org models.Organization, sessionID uint) error {
	var flags []models.FlagLog
	if err := s.db.Where("event_id = ? AND session_id = ?", event.ID, sessionID).
		Order("start_time asc").Find(&flags).Error; err != nil {
		return fmt.Errorf("query flags: %w", err)
	}
	return s.putJSON(ctx, flagsKey(org.ShortName, event.ID, sessionID), flags)
}

// deviceRecord is one car's X2 transponder assignment as known to the bus
// at archive time, keyed by car number.
type deviceRecord struct {
	CarNumber     string `json:"carNumber"`
	TransponderID uint32 `json:"transponderId"`
}

// archiveDeviceData snapshots the X2 transponder assignment (bus-cached,
// never persisted relationally) for every car that logged a lap in this
// event, since that cache is the only place it lives before it expires.
func (s *Service) archiveDeviceData(ctx context.Context, event models.Event, org models.Organization) error {
	carNumbers, err := s.carNumbersFor(event.ID)
	if err != nil {
		return fmt.Errorf("list car numbers: %w", err)
	}

	records := make([]deviceRecord, 0, len(carNumbers))
	for _, car := range carNumbers {
		rec, err := s.bus.GetEventDriver(ctx, event.ID, car)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, deviceRecord{CarNumber: car, TransponderID: rec.TransponderID})
	}
	return s.putJSON(ctx, deviceDataKey(org.ShortName, event.ID), records)
}

// competitorRecord is one car's driver/competitor metadata as known to the
// bus at archive time.
type competitorRecord struct {
	CarNumber  string `json:"carNumber"`
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
}

func (s *Service) archiveCompetitors(ctx context.Context, event models.Event, org models.Organization) error {
	carNumbers, err := s.carNumbersFor(event.ID)
	if err != nil {
		return fmt.Errorf("list car numbers: %w", err)
	}

	records := make([]competitorRecord, 0, len(carNumbers))
	for _, car := range carNumbers {
		rec, err := s.bus.GetEventDriver(ctx, event.ID, car)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, competitorRecord{CarNumber: car, DriverID: rec.DriverID, DriverName: rec.DriverName})
	}
	return s.putJSON(ctx, competitorsKey(org.ShortName, event.ID), records)
}

func (s *Service) carNumbersFor(eventID uint) ([]string, error) {
	var numbers []string
	if err := s.db.Model(&models.CarLapLog{}).
		Where("event_id = ?", eventID).
		Distinct("car_number").
		Pluck("car_number", &numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.uploader.Put(ctx, key, body); err != nil {
		return err
	}
	return nil
}

func purgeCarLastLaps(db *gorm.DB, eventID uint) error {
	return db.Where("event_id = ?", eventID).Delete(&models.CarLastLap{}).Error
}
