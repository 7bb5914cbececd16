package processor

import (
	"strings"
	"time"

	"github.com/zulandar/racetiming/internal/sessionstate"
	"github.com/zulandar/racetiming/internal/wire/rmonitor"
)

// RMonitorOutcome carries the side effects of one decoded RMonitor record
// that the owning loop must act on beyond the direct state-store mutation:
// the resulting patches to broadcast, a session-identity change to hand to
// the session monitor, an unconditional reset, or a completed lap to
// persist.
type RMonitorOutcome struct {
	CarNumber     string
	CarPatch      sessionstate.CarPositionPatch
	StatePatch    sessionstate.SessionStatePatch
	SessionChange *SessionChange
	Reset         bool
	LapCompleted  *LapCompletion
}

// SessionChange is a decoded $B record.
type SessionChange struct {
	SessionID   uint
	SessionName string
}

// LapCompletion is a decoded $J record, ready to persist as a CarLapLog.
type LapCompletion struct {
	CarNumber string
	Lap       int
	ElapsedMs int64
}

// applyRMonitorRecord mutates store according to one decoded RMonitor
// record and reports any outcome the caller must additionally act on.
func applyRMonitorRecord(store *sessionstate.Store, rec rmonitor.Record) RMonitorOutcome {
	switch rec.Type {
	case rmonitor.TypeCompetitor:
		c := rec.Competitor
		carPatch := store.UpdateCar(c.Number, func(cp *sessionstate.CarPosition) {
			cp.TransponderID = c.TransponderID
			cp.Class = c.Class
		})
		statePatch := upsertEventEntry(store, sessionstate.EventEntry{Number: c.Number, Driver: c.Name, Class: c.Class})
		return RMonitorOutcome{CarNumber: c.Number, CarPatch: carPatch, StatePatch: statePatch}

	case rmonitor.TypeRaceInfo:
		return RMonitorOutcome{SessionChange: &SessionChange{SessionID: rec.RaceInfo.SessionID, SessionName: rec.RaceInfo.SessionName}}

	case rmonitor.TypeClass:
		return RMonitorOutcome{}

	case rmonitor.TypeSetting:
		if strings.EqualFold(strings.TrimSpace(rec.Setting.Name), "PracticeQualifying") {
			value := strings.TrimSpace(rec.Setting.Value)
			patch := store.Update(func(s *sessionstate.SessionState) {
				s.IsPracticeQualifying = value == "1" || strings.EqualFold(value, "true")
			})
			return RMonitorOutcome{StatePatch: patch}
		}
		return RMonitorOutcome{}

	case rmonitor.TypeHeartbeat:
		h := rec.Heartbeat
		now := time.Now().UTC()
		patch := store.Update(func(s *sessionstate.SessionState) {
			s.LapsToGo = h.LapsToGo
			s.TimeToGo = h.TimeToGo
			s.RunningRaceTime = h.ElapsedTime
			s.LocalTimeOfDay = h.TimeOfDay
			applyFlagChange(s, flagFromString(h.Flag), now)
		})
		return RMonitorOutcome{StatePatch: patch}

	case rmonitor.TypePosition:
		p := rec.Position
		total, _ := rmonitor.ParseDuration(p.TotalTime)
		carPatch := store.UpdateCar(p.Number, func(cp *sessionstate.CarPosition) {
			cp.OverallPosition = p.Position
			cp.LastLap = p.Laps
			cp.TotalTimeMs = total.Milliseconds()
		})
		return RMonitorOutcome{CarNumber: p.Number, CarPatch: carPatch}

	case rmonitor.TypeBestLap:
		b := rec.BestLap
		lapTime, _ := rmonitor.ParseDuration(b.LapTime)
		carPatch := store.UpdateCar(b.Number, func(cp *sessionstate.CarPosition) {
			cp.BestLap = b.Lap
			cp.BestLapTimeMs = lapTime.Milliseconds()
		})
		return RMonitorOutcome{CarNumber: b.Number, CarPatch: carPatch}

	case rmonitor.TypeReset:
		return RMonitorOutcome{Reset: true}

	case rmonitor.TypeLapComplete:
		l := rec.LapComplete
		lastTime, _ := rmonitor.ParseDuration(l.LastTime)
		carPatch := store.UpdateCar(l.Number, func(cp *sessionstate.CarPosition) {
			cp.LastLap = l.Lap
			cp.LastTimeMs = lastTime.Milliseconds()
		})
		return RMonitorOutcome{
			CarNumber:    l.Number,
			CarPatch:     carPatch,
			LapCompleted: &LapCompletion{CarNumber: l.Number, Lap: l.Lap, ElapsedMs: lastTime.Milliseconds()},
		}

	default:
		return RMonitorOutcome{}
	}
}

func upsertEventEntry(store *sessionstate.Store, entry sessionstate.EventEntry) sessionstate.SessionStatePatch {
	return store.Update(func(s *sessionstate.SessionState) {
		for i := range s.EventEntries {
			if s.EventEntries[i].Number == entry.Number {
				s.EventEntries[i] = entry
				return
			}
		}
		s.EventEntries = append(s.EventEntries, entry)
	})
}
