package processor

import (
	"strings"
	"time"

	"github.com/zulandar/racetiming/internal/sessionstate"
)

// flagFromString maps the free-text flag token carried on the wire to the
// closed Flag enum (§6.1/§6.2 both use the same vocabulary).
func flagFromString(s string) sessionstate.Flag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green":
		return sessionstate.FlagGreen
	case "yellow", "caution":
		return sessionstate.FlagYellow
	case "red":
		return sessionstate.FlagRed
	case "white":
		return sessionstate.FlagWhite
	case "checkered", "checker", "finish":
		return sessionstate.FlagCheckered
	case "black":
		return sessionstate.FlagBlack
	case "purple", "purple35", "track clear":
		return sessionstate.FlagPurple35
	default:
		return sessionstate.FlagUnknown
	}
}

// applyFlagChange closes the open flag interval and opens a new one when
// the flag actually changes, counting each change to yellow in
// NumberOfYellows (§3/§4.B). at is the moment of the change and becomes
// both the closed interval's EndTime and the new interval's StartTime.
func applyFlagChange(s *sessionstate.SessionState, newFlag sessionstate.Flag, at time.Time) {
	if s.CurrentFlag == newFlag {
		return
	}

	if open := s.CurrentFlagInterval(); open != nil {
		end := at
		open.EndTime = &end
	}

	s.FlagDurations = append(s.FlagDurations, sessionstate.FlagInterval{Flag: newFlag, StartTime: at})
	s.CurrentFlag = newFlag
	if newFlag == sessionstate.FlagYellow {
		s.NumberOfYellows++
	}
}
