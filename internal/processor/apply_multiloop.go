package processor

import (
	"github.com/zulandar/racetiming/internal/sessionstate"
	"github.com/zulandar/racetiming/internal/wire/multiloop"
)

// MultiloopOutcome mirrors RMonitorOutcome for the binary protocol; only
// CompletedLap produces a persistable lap completion.
type MultiloopOutcome struct {
	CarNumber    string
	CarPatch     sessionstate.CarPositionPatch
	StatePatch   sessionstate.SessionStatePatch
	LapCompleted *LapCompletion
}

func applyMultiloopFrame(store *sessionstate.Store, f multiloop.Frame) MultiloopOutcome {
	switch f.Type {
	case multiloop.TypeAnnouncement:
		a := f.Announcement
		patch := store.Update(func(s *sessionstate.SessionState) {
			s.Announcements = append(s.Announcements, sessionstate.Announcement{Text: a.Text, Priority: a.Priority})
		})
		return MultiloopOutcome{StatePatch: patch}

	case multiloop.TypeCompletedLap:
		l := f.CompletedLap
		carPatch := store.UpdateCar(l.Number, func(cp *sessionstate.CarPosition) {
			cp.StartPosition = l.StartPosition
			cp.LapsLedOverall = l.LapsLed
			cp.LastLapPitted = l.LastLapPitted
			cp.PitStopCount = l.PitStopCount
			cp.CurrentStatus = sessionstate.TruncateStatus(l.CurrentStatus)
		})
		return MultiloopOutcome{
			CarNumber:    l.Number,
			CarPatch:     carPatch,
			LapCompleted: &LapCompletion{CarNumber: l.Number},
		}

	case multiloop.TypeCompletedSection:
		sec := f.CompletedSection
		carPatch := store.UpdateCar(sec.Number, func(cp *sessionstate.CarPosition) {
			upsertSection(cp, sessionstate.CompletedSection{
				Number:        sec.Number,
				SectionID:     sec.SectionID,
				ElapsedMs:     sec.ElapsedMs,
				LastSectionMs: sec.LastSectionMs,
				LastLap:       sec.LastLap,
			})
		})
		return MultiloopOutcome{CarNumber: sec.Number, CarPatch: carPatch}

	case multiloop.TypeLineCrossing:
		c := f.LineCrossing
		carPatch := store.UpdateCar(c.Number, func(cp *sessionstate.CarPosition) {
			switch c.CrossingStatus {
			case multiloop.CrossingPit:
				cp.InPit = true
				cp.PitEntered = true
				cp.PitExited = false
			case multiloop.CrossingTrack:
				cp.InPit = false
				cp.PitExited = true
			}
		})
		return MultiloopOutcome{CarNumber: c.Number, CarPatch: carPatch}

	case multiloop.TypeFlagInformation:
		fi := f.FlagInformation
		patch := store.Update(func(s *sessionstate.SessionState) {
			s.GreenTimeMs = fi.GreenTimeMs
			s.GreenLaps = fi.GreenLaps
			s.YellowTimeMs = fi.YellowTimeMs
			s.YellowLaps = fi.YellowLaps
			s.NumberOfYellows = fi.NumberOfYellows
			s.RedTimeMs = fi.RedTimeMs
			s.AverageRaceSpeed = fi.AverageRaceSpeed
			s.LeadChanges = fi.LeadChanges
		})
		return MultiloopOutcome{StatePatch: patch}

	case multiloop.TypeRunInformation:
		ri := f.RunInformation
		patch := store.Update(func(s *sessionstate.SessionState) {
			s.SessionName = ri.RunName
			s.IsPracticeQualifying = ri.RunType != multiloop.RunRace
		})
		return MultiloopOutcome{StatePatch: patch}

	default:
		return MultiloopOutcome{}
	}
}

// upsertSection replaces the entry for SectionID if present, else appends;
// CompletedSections is always diffed wholesale (§4.B), so positional order
// only needs to be stable within a car, not globally meaningful.
func upsertSection(cp *sessionstate.CarPosition, sec sessionstate.CompletedSection) {
	for i := range cp.CompletedSections {
		if cp.CompletedSections[i].SectionID == sec.SectionID {
			cp.CompletedSections[i] = sec
			return
		}
	}
	cp.CompletedSections = append(cp.CompletedSections, sec)
}
