package processor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/controllog"
	"github.com/zulandar/racetiming/internal/driverenrich"
	"github.com/zulandar/racetiming/internal/metrics"
	"github.com/zulandar/racetiming/internal/sessionmonitor"
	"github.com/zulandar/racetiming/internal/sessionstate"
	"github.com/zulandar/racetiming/internal/wire/multiloop"
	"github.com/zulandar/racetiming/internal/wire/rmonitor"
	"gorm.io/gorm"
)

// Config wires a Processor's collaborators. EventID and OwnerID are
// required; everything else defaults sensibly for production use and is
// overridden in tests.
type Config struct {
	EventID     uint
	OwnerID     string
	DB          *gorm.DB
	Bus         bus.Client
	Broadcaster Broadcaster
	ControlLog  *controllog.Aggregator // nil if the org has no control-log source configured

	IngestIdle      time.Duration // how long to sleep after an empty stream read
	RenewEvery      time.Duration // event-lock renewal cadence
	SnapshotEvery   time.Duration
	ControlLogEvery time.Duration
	DrainTimeout    time.Duration
}

func (c *Config) setDefaults() {
	if c.IngestIdle <= 0 {
		c.IngestIdle = 250 * time.Millisecond
	}
	if c.RenewEvery <= 0 {
		c.RenewEvery = 2 * time.Minute
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = SnapshotInterval
	}
	if c.ControlLogEvery <= 0 {
		c.ControlLogEvery = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 15 * time.Second
	}
	if c.Broadcaster == nil {
		c.Broadcaster = NullBroadcaster{}
	}
}

// Processor owns one event's live pipeline: it is the sole writer of the
// event's sessionstate.Store (§3.3) for as long as it holds the event lock.
type Processor struct {
	cfg      Config
	store    *sessionstate.Store
	enricher *driverenrich.Enricher
	monitor  *sessionmonitor.Monitor

	streamCursor string
}

// New constructs a Processor. It does not acquire the event lock or start
// ingesting; call Run for that.
func New(cfg Config) *Processor {
	cfg.setDefaults()
	return &Processor{
		cfg:      cfg,
		store:    sessionstate.NewStore(&sessionstate.SessionState{EventID: cfg.EventID}),
		enricher: driverenrich.New(cfg.Bus),
		monitor:  sessionmonitor.New(cfg.DB, cfg.EventID, 1500*time.Millisecond),
	}
}

// Run acquires the event lock and runs the ingest/decode/aggregate/
// enrich/broadcast/persist loop until ctx is cancelled. On cancellation it
// drains in-flight work for up to cfg.DrainTimeout before releasing the
// lock and returning.
func (p *Processor) Run(ctx context.Context) error {
	acquired, err := AcquireEventLock(p.cfg.DB, p.cfg.EventID, p.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("processor: acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("processor: event %d already owned by another worker", p.cfg.EventID)
	}
	defer func() {
		if err := ReleaseEventLock(p.cfg.DB, p.cfg.EventID, p.cfg.OwnerID); err != nil {
			log.Printf("processor: release lock event %d: %v", p.cfg.EventID, err)
		}
	}()

	renewTicker := time.NewTicker(p.cfg.RenewEvery)
	defer renewTicker.Stop()
	snapshotTicker := time.NewTicker(p.cfg.SnapshotEvery)
	defer snapshotTicker.Stop()
	controlLogTicker := time.NewTicker(p.cfg.ControlLogEvery)
	defer controlLogTicker.Stop()
	driverSweepTicker := time.NewTicker(60 * time.Second)
	defer driverSweepTicker.Stop()

	shutdownCh, cancelShutdown, err := p.cfg.Bus.SubscribeShutdownSignal(ctx)
	if err != nil {
		return fmt.Errorf("processor: subscribe shutdown signal: %w", err)
	}
	defer cancelShutdown()

	for {
		select {
		case <-ctx.Done():
			return p.drain()

		case ids := <-shutdownCh:
			if containsEvent(ids, p.cfg.EventID) {
				return p.drain()
			}

		case <-renewTicker.C:
			if err := RenewEventLock(p.cfg.DB, p.cfg.EventID, p.cfg.OwnerID); err != nil {
				return fmt.Errorf("processor: lost event lock: %w", err)
			}

		case <-snapshotTicker.C:
			p.emitSnapshot(ctx)

		case <-controlLogTicker.C:
			p.pollControlLog(ctx)

		case <-driverSweepTicker.C:
			patches, err := p.enricher.Sweep(ctx, p.cfg.EventID, p.store)
			if err != nil {
				log.Printf("processor: event %d driver sweep: %v", p.cfg.EventID, err)
			}
			for _, patch := range patches {
				p.cfg.Broadcaster.BroadcastCarPatches(ctx, p.cfg.EventID, map[string]sessionstate.CarPositionPatch{patch.Number: patch})
			}

		default:
			if !p.ingestOnce(ctx) {
				time.Sleep(p.cfg.IngestIdle)
			}
		}
	}
}

// drain gives in-flight work up to cfg.DrainTimeout to settle: one final
// ingest sweep and a snapshot broadcast, matching the pre-shutdown drain
// budget in §4.C failure semantics.
func (p *Processor) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()

	for p.ingestOnce(ctx) {
		select {
		case <-ctx.Done():
			p.emitSnapshot(ctx)
			return nil
		default:
		}
	}
	p.emitSnapshot(ctx)
	return nil
}

func containsEvent(ids []uint, eventID uint) bool {
	for _, id := range ids {
		if id == eventID {
			return true
		}
	}
	return false
}

// ingestOnce reads and applies the next batch of frames. It returns true
// if any frame was processed, so the caller can back off only when the
// stream is genuinely idle.
func (p *Processor) ingestOnce(ctx context.Context) bool {
	entries, err := p.cfg.Bus.ReadRMonitorStream(ctx, p.cfg.EventID, p.monitor.SessionID(), p.streamCursor)
	if err != nil {
		metrics.BusReconnects.Inc()
		return false
	}
	if len(entries) == 0 {
		return false
	}

	for _, entry := range entries {
		p.applyEntry(ctx, entry)
		p.streamCursor = entry.ID
	}
	return true
}

func (p *Processor) applyEntry(ctx context.Context, entry bus.StreamEntry) {
	env, err := decodeEnvelope(entry.Payload)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("envelope").Inc()
		return
	}

	switch env.Protocol {
	case ProtocolRMonitor:
		p.applyRMonitorLine(ctx, env.Data)
	case ProtocolMultiloop:
		p.applyMultiloopPayload(ctx, env.Data)
	default:
		metrics.DecodeFailures.WithLabelValues(string(env.Protocol)).Inc()
	}
}

func (p *Processor) applyRMonitorLine(ctx context.Context, line string) {
	rec, err := rmonitor.Decode(line)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("rmonitor").Inc()
		return
	}
	metrics.RecordsProcessed.WithLabelValues("rmonitor").Inc()

	outcome := applyRMonitorRecord(p.store, rec)

	if outcome.Reset {
		p.handleReset(ctx)
		return
	}
	if outcome.SessionChange != nil {
		p.handleSessionChange(ctx, outcome.SessionChange.SessionID, outcome.SessionChange.SessionName)
		return
	}

	p.broadcastPatches(ctx, outcome.CarNumber, outcome.CarPatch, outcome.StatePatch)
	if outcome.LapCompleted != nil {
		recordLap(p.cfg.DB, p.cfg.EventID, p.monitor.SessionID(), *outcome.LapCompleted)
	}
	if outcome.StatePatch.CurrentFlag != nil {
		p.recordFlagTransition(*outcome.StatePatch.CurrentFlag)
	}
	if !outcome.StatePatch.IsEmpty() {
		p.evaluateSessionTick(ctx)
	}
}

// recordFlagTransition mirrors a flag interval change into the durable
// audit trail as it happens (§5), closing the interval that was open a
// moment ago.
func (p *Processor) recordFlagTransition(newFlag sessionstate.Flag) {
	now := time.Now().UTC()
	closeOpenFlagLog(p.cfg.DB, p.cfg.EventID, p.monitor.SessionID(), now)
	recordFlagChange(p.cfg.DB, p.cfg.EventID, p.monitor.SessionID(), string(newFlag), now)
}

func (p *Processor) applyMultiloopPayload(ctx context.Context, base64Data string) {
	raw, err := decodeMultiloopBase64(base64Data)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("multiloop").Inc()
		return
	}
	frame, err := multiloop.ReadFrame(bytes.NewReader(raw))
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("multiloop").Inc()
		return
	}
	metrics.RecordsProcessed.WithLabelValues("multiloop").Inc()

	outcome := applyMultiloopFrame(p.store, frame)
	p.broadcastPatches(ctx, outcome.CarNumber, outcome.CarPatch, outcome.StatePatch)
	if outcome.LapCompleted != nil {
		recordLap(p.cfg.DB, p.cfg.EventID, p.monitor.SessionID(), *outcome.LapCompleted)
	}
	if !outcome.StatePatch.IsEmpty() {
		p.evaluateSessionTick(ctx)
	}
}

func (p *Processor) broadcastPatches(ctx context.Context, carNumber string, carPatch sessionstate.CarPositionPatch, statePatch sessionstate.SessionStatePatch) {
	if carNumber != "" && !carPatch.IsEmpty() {
		rec, err := p.cfg.Bus.GetEventDriver(ctx, p.cfg.EventID, carNumber)
		if err != nil || rec == nil {
			metrics.EnrichmentMisses.Inc()
		} else {
			enriched := p.store.UpdateCar(carNumber, func(c *sessionstate.CarPosition) {
				c.DriverID = rec.DriverID
				c.DriverName = rec.DriverName
			})
			if !enriched.IsEmpty() {
				carPatch = sessionstate.MergeCarPositionPatch(carPatch, enriched)
			}
		}
		p.cfg.Broadcaster.BroadcastCarPatches(ctx, p.cfg.EventID, map[string]sessionstate.CarPositionPatch{carNumber: carPatch})
	}
	if !statePatch.IsEmpty() {
		p.cfg.Broadcaster.BroadcastSessionPatch(ctx, p.cfg.EventID, statePatch)
	}
}

func (p *Processor) handleReset(ctx context.Context) {
	current := p.store.Snapshot()
	p.store.Replace(&sessionstate.SessionState{EventID: p.cfg.EventID, SessionID: current.SessionID, SessionName: current.SessionName})
	p.cfg.Broadcaster.BroadcastReset(ctx, p.cfg.EventID)
}

func (p *Processor) handleSessionChange(ctx context.Context, sessionID uint, name string) {
	snapshot := p.store.Snapshot()
	controlLogs := p.currentControlLogs(snapshot)

	if err := p.monitor.OnSessionChange(ctx, sessionID, name, 0, snapshot, controlLogs); err != nil {
		log.Printf("processor: event %d session change: %v", p.cfg.EventID, err)
		return
	}

	if !sessionstate.IsReservedSession(sessionID) && snapshot.SessionID != sessionID {
		p.store.Replace(&sessionstate.SessionState{EventID: p.cfg.EventID, SessionID: sessionID, SessionName: name})
		p.streamCursor = ""
		p.cfg.Broadcaster.BroadcastReset(ctx, p.cfg.EventID)
	}
}

// evaluateSessionTick feeds the session monitor's Finishing/Finalized
// transitions from the latest state, independent of which wire record
// triggered the update.
func (p *Processor) evaluateSessionTick(ctx context.Context) {
	snapshot := p.store.Snapshot()
	tick := sessionmonitor.Tick{
		Flag:           snapshot.CurrentFlag,
		LocalTimeOfDay: snapshot.LocalTimeOfDay,
		CarLastLaps:    lastLapsByCar(snapshot.CarPositions),
	}

	finalized, err := p.monitor.Evaluate(ctx, tick, snapshot, p.currentControlLogs(snapshot))
	if err != nil {
		log.Printf("processor: event %d session evaluate: %v", p.cfg.EventID, err)
		return
	}
	if finalized {
		p.streamCursor = ""
	}
}

func (p *Processor) currentControlLogs(snapshot *sessionstate.SessionState) map[string]sessionstate.CarControlLogs {
	if p.cfg.ControlLog == nil {
		return nil
	}
	out := make(map[string]sessionstate.CarControlLogs, len(snapshot.CarPositions))
	for _, c := range snapshot.CarPositions {
		if cl, ok := p.cfg.ControlLog.CarLog(c.Number); ok {
			out[c.Number] = cl
		}
	}
	return out
}

func (p *Processor) pollControlLog(ctx context.Context) {
	if p.cfg.ControlLog == nil {
		return
	}
	updates, err := p.cfg.ControlLog.Poll(ctx)
	if err != nil {
		log.Printf("processor: event %d control log poll: %v", p.cfg.EventID, err)
		return
	}
	if len(updates) > 0 {
		p.cfg.Broadcaster.BroadcastControlLog(ctx, p.cfg.EventID, updates)
	}
}

func (p *Processor) emitSnapshot(ctx context.Context) {
	snapshot := p.store.Snapshot()
	mp, gz, err := EncodeSnapshot(snapshot)
	if err != nil {
		log.Printf("processor: event %d encode snapshot: %v", p.cfg.EventID, err)
		return
	}
	p.cfg.Broadcaster.BroadcastSnapshot(ctx, p.cfg.EventID, mp, gz)
}

func lastLapsByCar(cars []sessionstate.CarPosition) map[string]int {
	out := make(map[string]int, len(cars))
	for _, c := range cars {
		out[c.Number] = c.LastLap
	}
	return out
}
