// Package sessionmonitor implements the per-event session lifecycle state
// machine (§4.D): Idle, Active, Finishing, Finalized. It watches the
// session-id and flag changes a processor feeds it and decides when a
// session starts, when the field has taken the checkered flag, and when
// enough time has passed with no more laps to call the session over.
package sessionmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/racetiming/internal/debounce"
	"github.com/zulandar/racetiming/internal/models"
	"github.com/zulandar/racetiming/internal/sessionstate"
	"github.com/zulandar/racetiming/internal/wire/rmonitor"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State is a lifecycle stage.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateFinishing  State = "finishing"
	StateFinalized  State = "finalized"
)

// finishGraceWindow is the elapsed-event-time a Finishing session must sit
// with no car's last-completed-lap changing before it is finalized (§4.D).
const finishGraceWindow = 60 * time.Second

// flagsThatCanTransitionToFinishing are the flags a session must have been
// under immediately before a checkered flag is observed for that checkered
// to start the finishing clock, rather than e.g. a red-to-checkered jump
// that more likely means the relay skipped states.
var flagsThatCanTransitionToFinishing = map[sessionstate.Flag]bool{
	sessionstate.FlagWhite:    true,
	sessionstate.FlagGreen:    true,
	sessionstate.FlagYellow:   true,
	sessionstate.FlagPurple35: true,
}

// Tick is one processor-cycle's worth of input to Monitor.Evaluate: the
// latest flag and the raw HH:MM:SS.mmm local time of day (parsed by
// Evaluate), plus each car's current
// last-completed-lap number so the monitor can tell whether anyone is still
// turning laps.
type Tick struct {
	Flag           sessionstate.Flag
	LocalTimeOfDay string
	CarLastLaps    map[string]int
}

// Monitor tracks one event's session lifecycle. It is not safe for
// concurrent use; the owning processor serializes calls.
type Monitor struct {
	db        *gorm.DB
	debouncer *debounce.Debouncer

	eventID uint
	state   State

	sessionID uint
	name      string
	tzOffset  int
	startedAt time.Time

	prevFlag        sessionstate.Flag
	finishingSnap   map[string]int
	lastLapChangeAt *time.Duration
	lastEventTime   *time.Duration
	haveTicked      bool

	// OnFinalize, if set, is invoked after a session is successfully
	// finalized, with the event and session ids whose terminal snapshot and
	// control logs were persisted.
	OnFinalize func(eventID, sessionID uint)
}

// New creates a Monitor for one event. debounceInterval bounds how often
// LastUpdated is persisted to the sessions table (§4.D last paragraph);
// pass 0 to disable debouncing.
func New(db *gorm.DB, eventID uint, debounceInterval time.Duration) *Monitor {
	m := &Monitor{db: db, eventID: eventID, state: StateIdle}
	if debounceInterval > 0 {
		m.debouncer = debounce.New(debounceInterval)
	}
	return m
}

// State returns the current lifecycle stage.
func (m *Monitor) State() State { return m.state }

// SessionID returns the session currently being tracked, or 0 if idle.
func (m *Monitor) SessionID() uint { return m.sessionID }

// OnSessionChange handles a $B (RaceInfo) or equivalent session-identity
// record. A reserved session id (invariant 7) is always a no-op: it is
// never persisted and never starts a lifecycle. Seeing a new, non-reserved
// session id while one is already active finalizes the current session
// first (§4.D "Active -> Active (new id)").
func (m *Monitor) OnSessionChange(ctx context.Context, sessionID uint, name string, tzOffsetHours int, snapshot *sessionstate.SessionState, controlLogs map[string]sessionstate.CarControlLogs) error {
	if sessionstate.IsReservedSession(sessionID) {
		return nil
	}

	if m.state != StateIdle && sessionID != m.sessionID {
		if err := m.finalize(ctx, snapshot, controlLogs); err != nil {
			return err
		}
	}

	if m.state == StateIdle || sessionID != m.sessionID {
		return m.start(ctx, sessionID, name, tzOffsetHours)
	}

	m.name = name
	return nil
}

func (m *Monitor) start(ctx context.Context, sessionID uint, name string, tzOffsetHours int) error {
	now := time.Now().UTC()

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Session{}).
			Where("event_id = ? AND is_live = ?", m.eventID, true).
			Update("is_live", false).Error; err != nil {
			return fmt.Errorf("sessionmonitor: clear prior live sessions: %w", err)
		}

		row := models.Session{
			EventID:       m.eventID,
			SessionID:     sessionID,
			Name:          name,
			LocalTZOffset: tzOffsetHours,
			IsLive:        true,
			StartTime:     now,
			LastUpdated:   now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "local_tz_offset", "is_live", "start_time", "last_updated"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("sessionmonitor: start session %d: %w", sessionID, err)
	}

	m.state = StateActive
	m.sessionID = sessionID
	m.name = name
	m.tzOffset = tzOffsetHours
	m.startedAt = now
	m.prevFlag = sessionstate.FlagUnknown
	m.finishingSnap = nil
	m.lastLapChangeAt = nil
	m.lastEventTime = nil
	m.haveTicked = false
	return nil
}

// Evaluate feeds one tick of flag/time/lap data through the Active ->
// Finishing -> Finalized transitions. It returns true if this call
// finalized the session.
func (m *Monitor) Evaluate(ctx context.Context, t Tick, snapshot *sessionstate.SessionState, controlLogs map[string]sessionstate.CarControlLogs) (bool, error) {
	if m.state != StateActive && m.state != StateFinishing {
		return false, nil
	}

	eventTime, err := rmonitor.ParseDuration(t.LocalTimeOfDay)
	if err != nil {
		// Can't reason about elapsed time this tick; still track the flag.
		m.prevFlag = t.Flag
		return false, nil
	}

	if m.state == StateActive {
		if flagsThatCanTransitionToFinishing[m.prevFlag] && t.Flag == sessionstate.FlagCheckered {
			m.state = StateFinishing
			m.finishingSnap = cloneLapMap(t.CarLastLaps)
			finishingStart := eventTime
			m.lastLapChangeAt = &finishingStart
			m.haveTicked = false
		}
	}

	finalized := false
	if m.state == StateFinishing {
		anyChanged := false
		for car, lap := range t.CarLastLaps {
			if snap, ok := m.finishingSnap[car]; !ok || lap != snap {
				anyChanged = true
			}
		}
		if anyChanged {
			changeTime := eventTime
			m.lastLapChangeAt = &changeTime
			m.finishingSnap = cloneLapMap(t.CarLastLaps)
		}

		stoppedAdvancing := m.haveTicked && m.lastEventTime != nil && *m.lastEventTime == eventTime

		graceElapsed := m.lastLapChangeAt != nil && eventTime-*m.lastLapChangeAt >= finishGraceWindow

		if stoppedAdvancing || graceElapsed {
			if err := m.finalize(ctx, snapshot, controlLogs); err != nil {
				return false, err
			}
			finalized = true
		}
	}

	if !finalized {
		m.lastEventTime = &eventTime
		m.haveTicked = true
		m.prevFlag = t.Flag
		m.persistLastUpdated(ctx)
	}
	return finalized, nil
}

func (m *Monitor) finalize(ctx context.Context, snapshot *sessionstate.SessionState, controlLogs map[string]sessionstate.CarControlLogs) error {
	now := time.Now().UTC()

	var stateJSON, logsJSON []byte
	var err error
	if snapshot != nil {
		if stateJSON, err = json.Marshal(snapshot); err != nil {
			return fmt.Errorf("sessionmonitor: marshal terminal state: %w", err)
		}
	}
	if controlLogs != nil {
		if logsJSON, err = json.Marshal(controlLogs); err != nil {
			return fmt.Errorf("sessionmonitor: marshal control logs: %w", err)
		}
	}

	sessionID, startedAt := m.sessionID, m.startedAt
	err = m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Session{}).
			Where("event_id = ? AND session_id = ?", m.eventID, sessionID).
			Updates(map[string]any{"is_live": false, "end_time": now, "last_updated": now}).Error; err != nil {
			return fmt.Errorf("finalize session row: %w", err)
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_time", "terminal_state", "control_logs"}),
		}).Create(&models.SessionResult{
			EventID:       m.eventID,
			SessionID:     sessionID,
			StartTime:     startedAt,
			TerminalState: string(stateJSON),
			ControlLogs:   string(logsJSON),
			CreatedAt:     now,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("sessionmonitor: finalize session %d: %w", sessionID, err)
	}

	m.state = StateFinalized
	if m.OnFinalize != nil {
		m.OnFinalize(m.eventID, sessionID)
	}
	return nil
}

func (m *Monitor) persistLastUpdated(ctx context.Context) {
	if m.debouncer == nil {
		m.writeLastUpdated(ctx)
		return
	}
	m.debouncer.Call(func() { m.writeLastUpdated(ctx) })
}

func (m *Monitor) writeLastUpdated(ctx context.Context) {
	m.db.WithContext(ctx).Model(&models.Session{}).
		Where("event_id = ? AND session_id = ?", m.eventID, m.sessionID).
		Update("last_updated", time.Now().UTC())
}

func cloneLapMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
