package processor

import (
	"context"

	"github.com/zulandar/racetiming/internal/controllog"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

// Broadcaster is the push-hub side of the pipeline (§4.G): everything the
// processor produces that a subscribed UI or relay needs to see. The hub
// package implements this over its websocket fan-out; NullBroadcaster is
// the zero-dependency stand-in used before a hub is wired and in tests.
type Broadcaster interface {
	BroadcastSessionPatch(ctx context.Context, eventID uint, patch sessionstate.SessionStatePatch) error
	BroadcastCarPatches(ctx context.Context, eventID uint, patches map[string]sessionstate.CarPositionPatch) error
	BroadcastReset(ctx context.Context, eventID uint) error
	BroadcastControlLog(ctx context.Context, eventID uint, updates []controllog.Update) error
	BroadcastSnapshot(ctx context.Context, eventID uint, msgpackBody, gzipJSONBody []byte) error
}

// NullBroadcaster discards everything. Useful for running a processor
// standalone (e.g. for replay/backfill tooling) without a live hub.
type NullBroadcaster struct{}

func (NullBroadcaster) BroadcastSessionPatch(context.Context, uint, sessionstate.SessionStatePatch) error {
	return nil
}
func (NullBroadcaster) BroadcastCarPatches(context.Context, uint, map[string]sessionstate.CarPositionPatch) error {
	return nil
}
func (NullBroadcaster) BroadcastReset(context.Context, uint) error { return nil }
func (NullBroadcaster) BroadcastControlLog(context.Context, uint, []controllog.Update) error {
	return nil
}
func (NullBroadcaster) BroadcastSnapshot(context.Context, uint, []byte, []byte) error { return nil }

var _ Broadcaster = NullBroadcaster{}
