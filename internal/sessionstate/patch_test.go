package sessionstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiffCarPosition_NoChangeProducesEmptyPatch(t *testing.T) {
	car := CarPosition{Number: "42", LastLap: 3, CurrentStatus: "RUNNING"}
	patch := DiffCarPosition(&car, &car)
	require.True(t, patch.IsEmpty())
}

func TestDiffCarPosition_OnlyChangedFieldsSet(t *testing.T) {
	prev := CarPosition{Number: "42", LastLap: 3, OverallPosition: 2, CurrentStatus: "RUNNING"}
	next := prev
	next.LastLap = 4

	patch := DiffCarPosition(&prev, &next)
	require.NotNil(t, patch.LastLap)
	require.Equal(t, 4, *patch.LastLap)
	require.Nil(t, patch.OverallPosition)
	require.Nil(t, patch.CurrentStatus)
}

func TestDiffCarPosition_CurrentStatusTruncatedBeforeCompare(t *testing.T) {
	prev := CarPosition{Number: "7", CurrentStatus: "RUNNING-ABCDEF"}
	next := CarPosition{Number: "7", CurrentStatus: "RUNNING-XYZ123"}
	// Both truncate to "RUNNING-ABCD" / "RUNNING-XYZ1" — still differ in this
	// case, so confirm truncation happens, not that it always matches.
	patch := DiffCarPosition(&prev, &next)
	require.NotNil(t, patch.CurrentStatus)
	require.Equal(t, TruncateStatus(next.CurrentStatus), *patch.CurrentStatus)

	prevSame := CarPosition{Number: "7", CurrentStatus: "RUNNING-SAME-TAIL-A"}
	nextSame := CarPosition{Number: "7", CurrentStatus: "RUNNING-SAME-TAIL-B"}
	require.Equal(t, TruncateStatus(prevSame.CurrentStatus), TruncateStatus(nextSame.CurrentStatus))
	patchSame := DiffCarPosition(&prevSame, &nextSame)
	require.Nil(t, patchSame.CurrentStatus)
}

func TestDiffCarPosition_CompletedSectionsReplacedWholesaleOnAnyChange(t *testing.T) {
	prev := CarPosition{Number: "9", CompletedSections: []CompletedSection{
		{Number: "9", SectionID: "S1", ElapsedMs: 1000},
		{Number: "9", SectionID: "S2", ElapsedMs: 2000},
	}}
	next := prev
	next.CompletedSections = []CompletedSection{
		{Number: "9", SectionID: "S1", ElapsedMs: 1000},
		{Number: "9", SectionID: "S2", ElapsedMs: 2500},
	}

	patch := DiffCarPosition(&prev, &next)
	require.NotNil(t, patch.CompletedSections)
	require.Len(t, *patch.CompletedSections, 2)
	require.Equal(t, next.CompletedSections, *patch.CompletedSections)
}

func TestApplyCarPositionPatch_IsIdempotent(t *testing.T) {
	prev := CarPosition{Number: "5", LastLap: 10, CurrentStatus: "PIT"}
	next := CarPosition{Number: "5", LastLap: 11, CurrentStatus: "RUNNING", OverallPosition: 3}

	patch := DiffCarPosition(&prev, &next)

	applied := prev
	ApplyCarPositionPatch(&applied, patch)
	require.Equal(t, TruncateStatus(next.CurrentStatus), applied.CurrentStatus)
	require.Equal(t, next.LastLap, applied.LastLap)
	require.Equal(t, next.OverallPosition, applied.OverallPosition)

	twice := applied
	ApplyCarPositionPatch(&twice, patch)
	require.Equal(t, applied, twice)
}

func TestMergeCarPositionPatch_LaterFieldWinsOverEarlier(t *testing.T) {
	lap1 := 1
	lap2 := 2
	pos1 := 5
	base := CarPositionPatch{Number: "3", LastLap: &lap1, OverallPosition: &pos1}
	next := CarPositionPatch{Number: "3", LastLap: &lap2}

	merged := MergeCarPositionPatch(base, next)
	require.Equal(t, 2, *merged.LastLap)
	require.Equal(t, 5, *merged.OverallPosition)
}

func TestDiffSessionState_NoChangeProducesEmptyPatch(t *testing.T) {
	s := &SessionState{EventID: 1, SessionID: 2, SessionName: "Race 1", CurrentFlag: FlagGreen}
	patch := DiffSessionState(s, s)
	require.True(t, patch.IsEmpty())
}

func TestDiffSessionState_NewAnnouncementsAreAppendOnlyDelta(t *testing.T) {
	t0 := time.Now()
	prev := &SessionState{
		EventID: 1, SessionID: 2,
		Announcements: []Announcement{{Timestamp: t0, Text: "green flag"}},
	}
	next := &SessionState{
		EventID: 1, SessionID: 2,
		Announcements: []Announcement{
			{Timestamp: t0, Text: "green flag"},
			{Timestamp: t0.Add(time.Minute), Text: "yellow flag, debris"},
		},
	}

	patch := DiffSessionState(prev, next)
	require.Len(t, patch.NewAnnouncements, 1)
	require.Equal(t, "yellow flag, debris", patch.NewAnnouncements[0].Text)
}

func TestDiffSessionState_FirstPatchFromNilCarriesEverything(t *testing.T) {
	next := &SessionState{EventID: 1, SessionID: 2, SessionName: "Qualifying", CurrentFlag: FlagGreen, LapsToGo: 10}
	patch := DiffSessionState(nil, next)
	require.NotNil(t, patch.SessionName)
	require.NotNil(t, patch.CurrentFlag)
	require.NotNil(t, patch.LapsToGo)
}

func TestApplySessionStatePatch_IsIdempotent(t *testing.T) {
	prev := &SessionState{EventID: 1, SessionID: 2, LapsToGo: 20, CurrentFlag: FlagGreen}
	next := &SessionState{EventID: 1, SessionID: 2, LapsToGo: 19, CurrentFlag: FlagYellow}

	patch := DiffSessionState(prev, next)

	applied := *prev
	ApplySessionStatePatch(&applied, patch)
	require.Equal(t, next.LapsToGo, applied.LapsToGo)
	require.Equal(t, next.CurrentFlag, applied.CurrentFlag)

	twice := applied
	ApplySessionStatePatch(&twice, patch)
	require.Equal(t, applied, twice)
}

func TestIsReservedSession(t *testing.T) {
	require.True(t, IsReservedSession(999999))
	require.False(t, IsReservedSession(1))
}
