// Package driverenrich resolves car→driver identity against the shared
// driver-info cache and folds it into the live CarPosition (§4.E).
package driverenrich

import (
	"context"
	"fmt"

	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

// Enricher resolves driver identity from the bus-backed cache.
type Enricher struct {
	bus bus.Client
}

// New returns an Enricher backed by the given bus client.
func New(b bus.Client) *Enricher {
	return &Enricher{bus: b}
}

// ApplyDriverInfo handles an inbound driver-info message: it resolves the
// affected car number (resolution order: direct car-number, else
// transponder lookup against the session's current cars, else drop) and
// caches the identity so future lookups and sweeps see it. It returns the
// resulting car patch, or a zero patch if the message could not resolve to
// a car.
func (e *Enricher) ApplyDriverInfo(ctx context.Context, store *sessionstate.Store, info sessionstate.DriverInfo) (sessionstate.CarPositionPatch, error) {
	number := info.CarNumber
	if number == "" {
		if info.TransponderID == 0 {
			return sessionstate.CarPositionPatch{}, nil
		}
		snap := store.Snapshot()
		if snap == nil {
			return sessionstate.CarPositionPatch{}, nil
		}
		rev := snap.TransponderToNumber()
		var ok bool
		number, ok = rev[info.TransponderID]
		if !ok {
			return sessionstate.CarPositionPatch{}, nil
		}
	}

	rec := bus.DriverRecord{
		EventID:       info.EventID,
		CarNumber:     number,
		TransponderID: info.TransponderID,
		DriverID:      info.DriverID,
		DriverName:    info.DriverName,
	}
	if err := e.bus.SetEventDriver(ctx, info.EventID, number, rec); err != nil {
		return sessionstate.CarPositionPatch{}, fmt.Errorf("driverenrich: cache event driver: %w", err)
	}
	if info.TransponderID != 0 {
		if err := e.bus.SetDriverTransponder(ctx, info.TransponderID, rec); err != nil {
			return sessionstate.CarPositionPatch{}, fmt.Errorf("driverenrich: cache transponder driver: %w", err)
		}
	}

	return store.UpdateCar(number, func(c *sessionstate.CarPosition) {
		c.DriverID = info.DriverID
		c.DriverName = info.DriverName
		if info.TransponderID != 0 {
			c.TransponderID = info.TransponderID
		}
	}), nil
}

// Sweep re-resolves every car currently in store against the cache,
// clearing driver fields for cars whose cache entry has disappeared
// (§4.E: "emit an empty-string patch ... this explicitly clears the
// displayed driver"). Run on an external ~60s ticker by the processor.
func (e *Enricher) Sweep(ctx context.Context, eventID uint, store *sessionstate.Store) ([]sessionstate.CarPositionPatch, error) {
	snap := store.Snapshot()
	if snap == nil {
		return nil, nil
	}

	var patches []sessionstate.CarPositionPatch
	for _, car := range snap.CarPositions {
		rec, err := e.bus.GetEventDriver(ctx, eventID, car.Number)
		if err != nil {
			return patches, fmt.Errorf("driverenrich: sweep lookup %s: %w", car.Number, err)
		}

		switch {
		case rec == nil && car.DriverID != "":
			patches = append(patches, store.UpdateCar(car.Number, func(c *sessionstate.CarPosition) {
				c.DriverID = ""
				c.DriverName = ""
			}))
		case rec != nil && (rec.DriverID != car.DriverID || rec.DriverName != car.DriverName):
			patches = append(patches, store.UpdateCar(car.Number, func(c *sessionstate.CarPosition) {
				c.DriverID = rec.DriverID
				c.DriverName = rec.DriverName
			}))
		}
	}
	return patches, nil
}
