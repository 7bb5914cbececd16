package sessionstate

import "reflect"

// CarPositionPatch carries only the fields of a CarPosition that changed
// since the last broadcast. Number is always present and identifies the
// car; every other field is a pointer and nil means "unchanged". Slice
// fields (CompletedSections) are replaced wholesale when any element
// differs, never patched element-by-element (§4.B).
type CarPositionPatch struct {
	Number string

	TransponderID *uint32
	Class         *string
	BestLap       *int
	BestLapTimeMs *int64
	InClassGapMs  *int64
	InClassDiffMs *int64
	OverallGapMs  *int64
	OverallDiffMs *int64
	TotalTimeMs   *int64
	LastTimeMs    *int64
	LastLap       *int

	OverallPosition            *int
	InClassPosition            *int
	StartPosition              *int
	StartPositionInClass       *int
	PositionsGained            *int
	PositionsGainedInClass     *int
	MostPositionsGained        *bool
	MostPositionsGainedInClass *bool

	PenaltyWarnings *int
	PenaltyLaps     *int

	PitEntered     *bool
	PitStartFinish *bool
	PitExited      *bool
	InPit          *bool
	LapIncludedPit *bool
	LastLapPitted  *bool
	PitStopCount   *int

	LastLoopName   *string
	IsStale        *bool
	CurrentFlag    *Flag
	DriverID       *string
	DriverName     *string
	LapsLedOverall *int
	CurrentStatus  *string

	CompletedSections *[]CompletedSection
}

// IsEmpty reports whether the patch carries no field changes, i.e. it would
// be a no-op to send or apply.
func (p *CarPositionPatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(*p)
	for i := 1; i < v.NumField(); i++ { // skip Number
		if !v.Field(i).IsNil() {
			return false
		}
	}
	return true
}

// DiffCarPosition produces the minimal patch turning prev into next. A nil
// prev means next is entirely new and every field is included.
func DiffCarPosition(prev, next *CarPosition) CarPositionPatch {
	p := CarPositionPatch{Number: next.Number}
	nextStatus := TruncateStatus(next.CurrentStatus)

	if prev == nil {
		p.TransponderID = &next.TransponderID
		p.Class = &next.Class
		p.BestLap = &next.BestLap
		p.BestLapTimeMs = &next.BestLapTimeMs
		p.InClassGapMs = &next.InClassGapMs
		p.InClassDiffMs = &next.InClassDiffMs
		p.OverallGapMs = &next.OverallGapMs
		p.OverallDiffMs = &next.OverallDiffMs
		p.TotalTimeMs = &next.TotalTimeMs
		p.LastTimeMs = &next.LastTimeMs
		p.LastLap = &next.LastLap
		p.OverallPosition = &next.OverallPosition
		p.InClassPosition = &next.InClassPosition
		p.StartPosition = &next.StartPosition
		p.StartPositionInClass = &next.StartPositionInClass
		p.PositionsGained = &next.PositionsGained
		p.PositionsGainedInClass = &next.PositionsGainedInClass
		p.MostPositionsGained = &next.MostPositionsGained
		p.MostPositionsGainedInClass = &next.MostPositionsGainedInClass
		p.PenaltyWarnings = &next.PenaltyWarnings
		p.PenaltyLaps = &next.PenaltyLaps
		p.PitEntered = &next.PitEntered
		p.PitStartFinish = &next.PitStartFinish
		p.PitExited = &next.PitExited
		p.InPit = &next.InPit
		p.LapIncludedPit = &next.LapIncludedPit
		p.LastLapPitted = &next.LastLapPitted
		p.PitStopCount = &next.PitStopCount
		p.LastLoopName = &next.LastLoopName
		p.IsStale = &next.IsStale
		p.CurrentFlag = &next.CurrentFlag
		p.DriverID = &next.DriverID
		p.DriverName = &next.DriverName
		p.LapsLedOverall = &next.LapsLedOverall
		p.CurrentStatus = &nextStatus
		if len(next.CompletedSections) > 0 {
			sections := append([]CompletedSection(nil), next.CompletedSections...)
			p.CompletedSections = &sections
		}
		return p
	}

	if prev.TransponderID != next.TransponderID {
		p.TransponderID = &next.TransponderID
	}
	if prev.Class != next.Class {
		p.Class = &next.Class
	}
	if prev.BestLap != next.BestLap {
		p.BestLap = &next.BestLap
	}
	if prev.BestLapTimeMs != next.BestLapTimeMs {
		p.BestLapTimeMs = &next.BestLapTimeMs
	}
	if prev.InClassGapMs != next.InClassGapMs {
		p.InClassGapMs = &next.InClassGapMs
	}
	if prev.InClassDiffMs != next.InClassDiffMs {
		p.InClassDiffMs = &next.InClassDiffMs
	}
	if prev.OverallGapMs != next.OverallGapMs {
		p.OverallGapMs = &next.OverallGapMs
	}
	if prev.OverallDiffMs != next.OverallDiffMs {
		p.OverallDiffMs = &next.OverallDiffMs
	}
	if prev.TotalTimeMs != next.TotalTimeMs {
		p.TotalTimeMs = &next.TotalTimeMs
	}
	if prev.LastTimeMs != next.LastTimeMs {
		p.LastTimeMs = &next.LastTimeMs
	}
	if prev.LastLap != next.LastLap {
		p.LastLap = &next.LastLap
	}
	if prev.OverallPosition != next.OverallPosition {
		p.OverallPosition = &next.OverallPosition
	}
	if prev.InClassPosition != next.InClassPosition {
		p.InClassPosition = &next.InClassPosition
	}
	if prev.StartPosition != next.StartPosition {
		p.StartPosition = &next.StartPosition
	}
	if prev.StartPositionInClass != next.StartPositionInClass {
		p.StartPositionInClass = &next.StartPositionInClass
	}
	if prev.PositionsGained != next.PositionsGained {
		p.PositionsGained = &next.PositionsGained
	}
	if prev.PositionsGainedInClass != next.PositionsGainedInClass {
		p.PositionsGainedInClass = &next.PositionsGainedInClass
	}
	if prev.MostPositionsGained != next.MostPositionsGained {
		p.MostPositionsGained = &next.MostPositionsGained
	}
	if prev.MostPositionsGainedInClass != next.MostPositionsGainedInClass {
		p.MostPositionsGainedInClass = &next.MostPositionsGainedInClass
	}
	if prev.PenaltyWarnings != next.PenaltyWarnings {
		p.PenaltyWarnings = &next.PenaltyWarnings
	}
	if prev.PenaltyLaps != next.PenaltyLaps {
		p.PenaltyLaps = &next.PenaltyLaps
	}
	if prev.PitEntered != next.PitEntered {
		p.PitEntered = &next.PitEntered
	}
	if prev.PitStartFinish != next.PitStartFinish {
		p.PitStartFinish = &next.PitStartFinish
	}
	if prev.PitExited != next.PitExited {
		p.PitExited = &next.PitExited
	}
	if prev.InPit != next.InPit {
		p.InPit = &next.InPit
	}
	if prev.LapIncludedPit != next.LapIncludedPit {
		p.LapIncludedPit = &next.LapIncludedPit
	}
	if prev.LastLapPitted != next.LastLapPitted {
		p.LastLapPitted = &next.LastLapPitted
	}
	if prev.PitStopCount != next.PitStopCount {
		p.PitStopCount = &next.PitStopCount
	}
	if prev.LastLoopName != next.LastLoopName {
		p.LastLoopName = &next.LastLoopName
	}
	if prev.IsStale != next.IsStale {
		p.IsStale = &next.IsStale
	}
	if prev.CurrentFlag != next.CurrentFlag {
		p.CurrentFlag = &next.CurrentFlag
	}
	if prev.DriverID != next.DriverID {
		p.DriverID = &next.DriverID
	}
	if prev.DriverName != next.DriverName {
		p.DriverName = &next.DriverName
	}
	if prev.LapsLedOverall != next.LapsLedOverall {
		p.LapsLedOverall = &next.LapsLedOverall
	}
	if TruncateStatus(prev.CurrentStatus) != nextStatus {
		p.CurrentStatus = &nextStatus
	}
	if !completedSectionsEqual(prev.CompletedSections, next.CompletedSections) {
		sections := append([]CompletedSection(nil), next.CompletedSections...)
		p.CompletedSections = &sections
	}

	return p
}

// completedSectionsEqual compares two CompletedSections vectors positionally;
// any length or per-element difference makes them unequal (§4.B: no
// per-element patching of this list, wholesale replace only).
func completedSectionsEqual(a, b []CompletedSection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyCarPositionPatch mutates car in place with every non-nil field in p.
// car.Number must already equal p.Number.
func ApplyCarPositionPatch(car *CarPosition, p CarPositionPatch) {
	if p.TransponderID != nil {
		car.TransponderID = *p.TransponderID
	}
	if p.Class != nil {
		car.Class = *p.Class
	}
	if p.BestLap != nil {
		car.BestLap = *p.BestLap
	}
	if p.BestLapTimeMs != nil {
		car.BestLapTimeMs = *p.BestLapTimeMs
	}
	if p.InClassGapMs != nil {
		car.InClassGapMs = *p.InClassGapMs
	}
	if p.InClassDiffMs != nil {
		car.InClassDiffMs = *p.InClassDiffMs
	}
	if p.OverallGapMs != nil {
		car.OverallGapMs = *p.OverallGapMs
	}
	if p.OverallDiffMs != nil {
		car.OverallDiffMs = *p.OverallDiffMs
	}
	if p.TotalTimeMs != nil {
		car.TotalTimeMs = *p.TotalTimeMs
	}
	if p.LastTimeMs != nil {
		car.LastTimeMs = *p.LastTimeMs
	}
	if p.LastLap != nil {
		car.LastLap = *p.LastLap
	}
	if p.OverallPosition != nil {
		car.OverallPosition = *p.OverallPosition
	}
	if p.InClassPosition != nil {
		car.InClassPosition = *p.InClassPosition
	}
	if p.StartPosition != nil {
		car.StartPosition = *p.StartPosition
	}
	if p.StartPositionInClass != nil {
		car.StartPositionInClass = *p.StartPositionInClass
	}
	if p.PositionsGained != nil {
		car.PositionsGained = *p.PositionsGained
	}
	if p.PositionsGainedInClass != nil {
		car.PositionsGainedInClass = *p.PositionsGainedInClass
	}
	if p.MostPositionsGained != nil {
		car.MostPositionsGained = *p.MostPositionsGained
	}
	if p.MostPositionsGainedInClass != nil {
		car.MostPositionsGainedInClass = *p.MostPositionsGainedInClass
	}
	if p.PenaltyWarnings != nil {
		car.PenaltyWarnings = *p.PenaltyWarnings
	}
	if p.PenaltyLaps != nil {
		car.PenaltyLaps = *p.PenaltyLaps
	}
	if p.PitEntered != nil {
		car.PitEntered = *p.PitEntered
	}
	if p.PitStartFinish != nil {
		car.PitStartFinish = *p.PitStartFinish
	}
	if p.PitExited != nil {
		car.PitExited = *p.PitExited
	}
	if p.InPit != nil {
		car.InPit = *p.InPit
	}
	if p.LapIncludedPit != nil {
		car.LapIncludedPit = *p.LapIncludedPit
	}
	if p.LastLapPitted != nil {
		car.LastLapPitted = *p.LastLapPitted
	}
	if p.PitStopCount != nil {
		car.PitStopCount = *p.PitStopCount
	}
	if p.LastLoopName != nil {
		car.LastLoopName = *p.LastLoopName
	}
	if p.IsStale != nil {
		car.IsStale = *p.IsStale
	}
	if p.CurrentFlag != nil {
		car.CurrentFlag = *p.CurrentFlag
	}
	if p.DriverID != nil {
		car.DriverID = *p.DriverID
	}
	if p.DriverName != nil {
		car.DriverName = *p.DriverName
	}
	if p.LapsLedOverall != nil {
		car.LapsLedOverall = *p.LapsLedOverall
	}
	if p.CurrentStatus != nil {
		car.CurrentStatus = *p.CurrentStatus
	}
	if p.CompletedSections != nil {
		car.CompletedSections = append([]CompletedSection(nil), (*p.CompletedSections)...)
	}
}

// MergeCarPositionPatch folds next onto base, field by field, with next
// taking priority wherever it sets a field. Patches for the same car are
// FIFO (§4.B: no cross-car ordering guarantee, but per-car order is
// preserved), so this is used to collapse a backlog into one patch without
// reordering any individual field's last-known value.
func MergeCarPositionPatch(base, next CarPositionPatch) CarPositionPatch {
	merged := base
	merged.Number = next.Number
	if next.TransponderID != nil {
		merged.TransponderID = next.TransponderID
	}
	if next.Class != nil {
		merged.Class = next.Class
	}
	if next.BestLap != nil {
		merged.BestLap = next.BestLap
	}
	if next.BestLapTimeMs != nil {
		merged.BestLapTimeMs = next.BestLapTimeMs
	}
	if next.InClassGapMs != nil {
		merged.InClassGapMs = next.InClassGapMs
	}
	if next.InClassDiffMs != nil {
		merged.InClassDiffMs = next.InClassDiffMs
	}
	if next.OverallGapMs != nil {
		merged.OverallGapMs = next.OverallGapMs
	}
	if next.OverallDiffMs != nil {
		merged.OverallDiffMs = next.OverallDiffMs
	}
	if next.TotalTimeMs != nil {
		merged.TotalTimeMs = next.TotalTimeMs
	}
	if next.LastTimeMs != nil {
		merged.LastTimeMs = next.LastTimeMs
	}
	if next.LastLap != nil {
		merged.LastLap = next.LastLap
	}
	if next.OverallPosition != nil {
		merged.OverallPosition = next.OverallPosition
	}
	if next.InClassPosition != nil {
		merged.InClassPosition = next.InClassPosition
	}
	if next.StartPosition != nil {
		merged.StartPosition = next.StartPosition
	}
	if next.StartPositionInClass != nil {
		merged.StartPositionInClass = next.StartPositionInClass
	}
	if next.PositionsGained != nil {
		merged.PositionsGained = next.PositionsGained
	}
	if next.PositionsGainedInClass != nil {
		merged.PositionsGainedInClass = next.PositionsGainedInClass
	}
	if next.MostPositionsGained != nil {
		merged.MostPositionsGained = next.MostPositionsGained
	}
	if next.MostPositionsGainedInClass != nil {
		merged.MostPositionsGainedInClass = next.MostPositionsGainedInClass
	}
	if next.PenaltyWarnings != nil {
		merged.PenaltyWarnings = next.PenaltyWarnings
	}
	if next.PenaltyLaps != nil {
		merged.PenaltyLaps = next.PenaltyLaps
	}
	if next.PitEntered != nil {
		merged.PitEntered = next.PitEntered
	}
	if next.PitStartFinish != nil {
		merged.PitStartFinish = next.PitStartFinish
	}
	if next.PitExited != nil {
		merged.PitExited = next.PitExited
	}
	if next.InPit != nil {
		merged.InPit = next.InPit
	}
	if next.LapIncludedPit != nil {
		merged.LapIncludedPit = next.LapIncludedPit
	}
	if next.LastLapPitted != nil {
		merged.LastLapPitted = next.LastLapPitted
	}
	if next.PitStopCount != nil {
		merged.PitStopCount = next.PitStopCount
	}
	if next.LastLoopName != nil {
		merged.LastLoopName = next.LastLoopName
	}
	if next.IsStale != nil {
		merged.IsStale = next.IsStale
	}
	if next.CurrentFlag != nil {
		merged.CurrentFlag = next.CurrentFlag
	}
	if next.DriverID != nil {
		merged.DriverID = next.DriverID
	}
	if next.DriverName != nil {
		merged.DriverName = next.DriverName
	}
	if next.LapsLedOverall != nil {
		merged.LapsLedOverall = next.LapsLedOverall
	}
	if next.CurrentStatus != nil {
		merged.CurrentStatus = next.CurrentStatus
	}
	if next.CompletedSections != nil {
		merged.CompletedSections = next.CompletedSections
	}
	return merged
}

// SessionStatePatch carries top-level SessionState field changes plus
// append-only announcement deltas. EventEntries and FlagDurations are
// compared and replaced wholesale like CompletedSections; Announcements are
// never retroactively edited so only new ones since the last patch are
// included.
type SessionStatePatch struct {
	EventID   uint
	SessionID uint

	SessionName          *string
	IsLive               *bool
	IsPracticeQualifying *bool

	CurrentFlag *Flag

	LapsToGo        *int
	TimeToGo        *string
	RunningRaceTime *string
	LocalTimeOfDay  *string

	GreenTimeMs      *int64
	GreenLaps        *int
	YellowTimeMs     *int64
	YellowLaps       *int
	NumberOfYellows  *int
	RedTimeMs        *int64
	AverageRaceSpeed *float64
	LeadChanges      *int

	EventEntries  *[]EventEntry
	FlagDurations *[]FlagInterval
	NewAnnouncements []Announcement
}

// IsEmpty reports whether the patch has no effect.
func (p *SessionStatePatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	if len(p.NewAnnouncements) > 0 {
		return false
	}
	v := reflect.ValueOf(*p)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		name := t.Field(i).Name
		if name == "EventID" || name == "SessionID" || name == "NewAnnouncements" {
			continue
		}
		if !v.Field(i).IsNil() {
			return false
		}
	}
	return true
}

// DiffSessionState produces the minimal patch turning prev into next,
// including any announcements appended since prev (matched by identity:
// announcements in next past len(prev.Announcements) are new).
func DiffSessionState(prev, next *SessionState) SessionStatePatch {
	p := SessionStatePatch{EventID: next.EventID, SessionID: next.SessionID}

	if prev == nil || prev.SessionName != next.SessionName {
		p.SessionName = &next.SessionName
	}
	if prev == nil || prev.IsLive != next.IsLive {
		p.IsLive = &next.IsLive
	}
	if prev == nil || prev.IsPracticeQualifying != next.IsPracticeQualifying {
		p.IsPracticeQualifying = &next.IsPracticeQualifying
	}
	if prev == nil || prev.CurrentFlag != next.CurrentFlag {
		p.CurrentFlag = &next.CurrentFlag
	}
	if prev == nil || prev.LapsToGo != next.LapsToGo {
		p.LapsToGo = &next.LapsToGo
	}
	if prev == nil || prev.TimeToGo != next.TimeToGo {
		p.TimeToGo = &next.TimeToGo
	}
	if prev == nil || prev.RunningRaceTime != next.RunningRaceTime {
		p.RunningRaceTime = &next.RunningRaceTime
	}
	if prev == nil || prev.LocalTimeOfDay != next.LocalTimeOfDay {
		p.LocalTimeOfDay = &next.LocalTimeOfDay
	}
	if prev == nil || prev.GreenTimeMs != next.GreenTimeMs {
		p.GreenTimeMs = &next.GreenTimeMs
	}
	if prev == nil || prev.GreenLaps != next.GreenLaps {
		p.GreenLaps = &next.GreenLaps
	}
	if prev == nil || prev.YellowTimeMs != next.YellowTimeMs {
		p.YellowTimeMs = &next.YellowTimeMs
	}
	if prev == nil || prev.YellowLaps != next.YellowLaps {
		p.YellowLaps = &next.YellowLaps
	}
	if prev == nil || prev.NumberOfYellows != next.NumberOfYellows {
		p.NumberOfYellows = &next.NumberOfYellows
	}
	if prev == nil || prev.RedTimeMs != next.RedTimeMs {
		p.RedTimeMs = &next.RedTimeMs
	}
	if prev == nil || prev.AverageRaceSpeed != next.AverageRaceSpeed {
		p.AverageRaceSpeed = &next.AverageRaceSpeed
	}
	if prev == nil || prev.LeadChanges != next.LeadChanges {
		p.LeadChanges = &next.LeadChanges
	}

	var prevEntries []EventEntry
	var prevFlags []FlagInterval
	var prevAnnLen int
	if prev != nil {
		prevEntries = prev.EventEntries
		prevFlags = prev.FlagDurations
		prevAnnLen = len(prev.Announcements)
	}
	if !eventEntriesEqual(prevEntries, next.EventEntries) {
		entries := append([]EventEntry(nil), next.EventEntries...)
		p.EventEntries = &entries
	}
	if !flagIntervalsEqual(prevFlags, next.FlagDurations) {
		flags := append([]FlagInterval(nil), next.FlagDurations...)
		p.FlagDurations = &flags
	}
	if len(next.Announcements) > prevAnnLen {
		p.NewAnnouncements = append([]Announcement(nil), next.Announcements[prevAnnLen:]...)
	}

	return p
}

func eventEntriesEqual(a, b []EventEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flagIntervalsEqual(a, b []FlagInterval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Flag != b[i].Flag || !a[i].StartTime.Equal(b[i].StartTime) {
			return false
		}
		switch {
		case a[i].EndTime == nil && b[i].EndTime == nil:
		case a[i].EndTime == nil || b[i].EndTime == nil:
			return false
		case !a[i].EndTime.Equal(*b[i].EndTime):
			return false
		}
	}
	return true
}

// ApplySessionStatePatch mutates s in place with every set field in p.
func ApplySessionStatePatch(s *SessionState, p SessionStatePatch) {
	if p.SessionName != nil {
		s.SessionName = *p.SessionName
	}
	if p.IsLive != nil {
		s.IsLive = *p.IsLive
	}
	if p.IsPracticeQualifying != nil {
		s.IsPracticeQualifying = *p.IsPracticeQualifying
	}
	if p.CurrentFlag != nil {
		s.CurrentFlag = *p.CurrentFlag
	}
	if p.LapsToGo != nil {
		s.LapsToGo = *p.LapsToGo
	}
	if p.TimeToGo != nil {
		s.TimeToGo = *p.TimeToGo
	}
	if p.RunningRaceTime != nil {
		s.RunningRaceTime = *p.RunningRaceTime
	}
	if p.LocalTimeOfDay != nil {
		s.LocalTimeOfDay = *p.LocalTimeOfDay
	}
	if p.GreenTimeMs != nil {
		s.GreenTimeMs = *p.GreenTimeMs
	}
	if p.GreenLaps != nil {
		s.GreenLaps = *p.GreenLaps
	}
	if p.YellowTimeMs != nil {
		s.YellowTimeMs = *p.YellowTimeMs
	}
	if p.YellowLaps != nil {
		s.YellowLaps = *p.YellowLaps
	}
	if p.NumberOfYellows != nil {
		s.NumberOfYellows = *p.NumberOfYellows
	}
	if p.RedTimeMs != nil {
		s.RedTimeMs = *p.RedTimeMs
	}
	if p.AverageRaceSpeed != nil {
		s.AverageRaceSpeed = *p.AverageRaceSpeed
	}
	if p.LeadChanges != nil {
		s.LeadChanges = *p.LeadChanges
	}
	if p.EventEntries != nil {
		s.EventEntries = append([]EventEntry(nil), (*p.EventEntries)...)
	}
	if p.FlagDurations != nil {
		s.FlagDurations = append([]FlagInterval(nil), (*p.FlagDurations)...)
	}
	if len(p.NewAnnouncements) > 0 {
		s.Announcements = append(s.Announcements, p.NewAnnouncements...)
	}
}
