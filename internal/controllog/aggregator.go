// Package controllog polls an external sanctioning-body control-log source
// per event, tracks what changed, and writes the changes to the shared bus
// cache (§4.F). It does not push to the hub itself: a processor.Processor
// configured with an Aggregator broadcasts the updates Poll returns, and
// the standalone `rtb controllog` worker only writes the cache.
package controllog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/metrics"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

// Update describes one car whose control-log entries or penalty totals
// changed on the most recent poll.
type Update struct {
	Car sessionstate.CarControlLogs
}

// Aggregator owns the control-log cache for a single event.
type Aggregator struct {
	eventID uint
	source  Source
	bus     bus.Client

	cache map[string]sessionstate.CarControlLogs
}

// New creates an Aggregator for eventID, polling source and publishing
// through b.
func New(eventID uint, source Source, b bus.Client) *Aggregator {
	return &Aggregator{eventID: eventID, source: source, bus: b, cache: make(map[string]sessionstate.CarControlLogs)}
}

// Poll fetches the current full set of per-car logs, diffs against the
// cache, GCs any car no longer present, and writes the full-event and
// changed per-car snapshots plus penalty totals to the bus. It returns the
// cars whose entries or penalty counts changed this poll.
func (a *Aggregator) Poll(ctx context.Context) ([]Update, error) {
	metrics.ControlLogRequests.Inc()
	current, err := a.source.Fetch(ctx, a.eventID)
	if err != nil {
		metrics.ControlLogFailures.Inc()
		return nil, fmt.Errorf("controllog: fetch event %d: %w", a.eventID, err)
	}

	var updates []Update
	for car, cl := range current {
		if !logsEqual(a.cache[car], cl) {
			updates = append(updates, Update{Car: cl})
			if added := len(cl.Entries) - len(a.cache[car].Entries); added > 0 {
				metrics.ControlLogEntriesTotal.Add(float64(added))
			}
		}
		a.cache[car] = cl
	}

	gone := make([]string, 0)
	for car := range a.cache {
		if _, ok := current[car]; !ok {
			gone = append(gone, car)
		}
	}
	for _, car := range gone {
		delete(a.cache, car)
		if err := a.bus.DeleteControlLogCar(ctx, a.eventID, car); err != nil {
			return updates, fmt.Errorf("controllog: gc car %s: %w", car, err)
		}
	}

	if err := a.publishSnapshots(ctx, updates); err != nil {
		return updates, err
	}
	return updates, nil
}

func (a *Aggregator) publishSnapshots(ctx context.Context, updates []Update) error {
	full, err := json.Marshal(a.cache)
	if err != nil {
		return fmt.Errorf("controllog: marshal full snapshot: %w", err)
	}
	if err := a.bus.SetControlLog(ctx, a.eventID, string(full)); err != nil {
		return fmt.Errorf("controllog: write full snapshot: %w", err)
	}

	for _, u := range updates {
		body, err := json.Marshal(u.Car)
		if err != nil {
			return fmt.Errorf("controllog: marshal car %s: %w", u.Car.Number, err)
		}
		if err := a.bus.SetControlLogCar(ctx, a.eventID, u.Car.Number, string(body)); err != nil {
			return fmt.Errorf("controllog: write car %s: %w", u.Car.Number, err)
		}
		if err := a.bus.SetCarPenalty(ctx, a.eventID, u.Car.Number, bus.CarPenalty{Warnings: u.Car.Warnings, Laps: u.Car.Laps}); err != nil {
			return fmt.Errorf("controllog: write penalty %s: %w", u.Car.Number, err)
		}
	}
	return nil
}

// CarLog returns the cached entry for car, used to serve on-demand
// snapshot requests from a single UI connection (§4.F last paragraph).
func (a *Aggregator) CarLog(car string) (sessionstate.CarControlLogs, bool) {
	cl, ok := a.cache[car]
	return cl, ok
}

func logsEqual(a, b sessionstate.CarControlLogs) bool {
	if a.Warnings != b.Warnings || a.Laps != b.Laps || len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			return false
		}
	}
	return true
}
