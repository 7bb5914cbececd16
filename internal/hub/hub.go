// Package hub implements the duplex push channel (§4.G, §6.3): relays push
// RMonitor/Multiloop frames and session changes in, UI clients subscribe to
// an event's broadcast group and receive session/car patches, resets, and
// control-log updates out. One Hub instance serves every event on a node;
// connections are demuxed by event id and, for control logs, by car.
package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/controllog"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

// outbound server-to-client event names (§4.G).
const (
	eventSessionPatch = "ReceiveSessionPatch"
	eventCarPatches   = "ReceiveCarPatches"
	eventReset        = "ReceiveReset"
	eventControlLog   = "ReceiveControlLog"
	eventMessage      = "ReceiveMessage" // legacy v1 gzip-json payload
	eventSnapshot     = "ReceiveSnapshot"
)

// outboundEnvelope is the JSON shape written to every websocket connection.
type outboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub owns every live connection on this node, grouped by event. It
// implements processor.Broadcaster so an event's processor can push
// directly into it without depending on the transport package.
type Hub struct {
	bus bus.Client

	mu          sync.RWMutex
	uiConns     map[uint]map[string]*Connection // eventID -> connID -> conn
	controlConn map[string]map[string]*Connection // "eventID-car" -> connID -> conn
	relayConns  map[uint]map[string]*Connection // eventID -> connID -> conn (relays of that event)
}

// New creates an empty Hub. b is used to record connection liveness so the
// orchestrator's heartbeat scan can see this node's relays and UI clients.
func New(b bus.Client) *Hub {
	return &Hub{
		bus:         b,
		uiConns:     make(map[uint]map[string]*Connection),
		controlConn: make(map[string]map[string]*Connection),
		relayConns:  make(map[uint]map[string]*Connection),
	}
}

func controlKey(eventID uint, car string) string {
	return strconv.FormatUint(uint64(eventID), 10) + "-" + car
}

// RegisterRelay adds a relay connection's liveness to the event's heartbeat
// hash entry and tracks it locally so SendRMonitor/SendSessionChange calls
// from that connection can be attributed to an event. Called again on every
// inbound SendRMonitor frame, which is what keeps LastSeen fresh for the
// orchestrator's 10-minute expiry scan (§4.H) while the relay stays connected.
func (h *Hub) RegisterRelay(ctx context.Context, eventID uint, conn *Connection) error {
	h.mu.Lock()
	if h.relayConns[eventID] == nil {
		h.relayConns[eventID] = make(map[string]*Connection)
	}
	h.relayConns[eventID][conn.ID] = conn
	h.mu.Unlock()

	return h.bus.SetRelayHeartbeat(ctx, eventID, bus.RelayConnectionEventEntry{
		EventID:      eventID,
		ConnectionID: conn.ID,
		LastSeen:     time.Now().UTC(),
	})
}

// UnregisterRelay removes a relay connection. The heartbeat hash entry is
// deliberately left in place: per §4.G, an ungraceful disconnect is
// reconciled by the orchestrator's 10-minute timeout, not by this call.
func (h *Hub) UnregisterRelay(eventID uint, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.relayConns[eventID], connID)
	if len(h.relayConns[eventID]) == 0 {
		delete(h.relayConns, eventID)
	}
}

// SubscribeToEvent joins a UI connection to an event's broadcast group.
func (h *Hub) SubscribeToEvent(ctx context.Context, eventID uint, conn *Connection) error {
	h.mu.Lock()
	if h.uiConns[eventID] == nil {
		h.uiConns[eventID] = make(map[string]*Connection)
	}
	h.uiConns[eventID][conn.ID] = conn
	h.mu.Unlock()

	return h.bus.AddStatusConnection(ctx, eventID, conn.ID)
}

// UnsubscribeFromEvent removes a UI connection from an event's group.
func (h *Hub) UnsubscribeFromEvent(ctx context.Context, eventID uint, connID string) error {
	h.mu.Lock()
	delete(h.uiConns[eventID], connID)
	if len(h.uiConns[eventID]) == 0 {
		delete(h.uiConns, eventID)
	}
	h.mu.Unlock()
	return h.bus.RemoveStatusConnection(ctx, eventID, connID)
}

// SubscribeToControlLogs joins a UI connection to one car's control-log
// group within an event.
func (h *Hub) SubscribeToControlLogs(eventID uint, car string, conn *Connection) {
	key := controlKey(eventID, car)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controlConn[key] == nil {
		h.controlConn[key] = make(map[string]*Connection)
	}
	h.controlConn[key][conn.ID] = conn
}

// UnsubscribeFromControlLogs removes a UI connection from a car's group.
func (h *Hub) UnsubscribeFromControlLogs(eventID uint, car, connID string) {
	key := controlKey(eventID, car)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.controlConn[key], connID)
	if len(h.controlConn[key]) == 0 {
		delete(h.controlConn, key)
	}
}

// RemoveConnection tears down all of a connection's subscriptions,
// regardless of kind. Call once from the connection's read-pump teardown.
func (h *Hub) RemoveConnection(ctx context.Context, conn *Connection) {
	h.mu.Lock()
	for eventID, conns := range h.uiConns {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.uiConns, eventID)
		}
	}
	for key, conns := range h.controlConn {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.controlConn, key)
		}
	}
	for eventID, conns := range h.relayConns {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.relayConns, eventID)
		}
	}
	h.mu.Unlock()

	_ = h.bus.RemoveStatusConnection(ctx, conn.lastSubscribedEvent, conn.ID)
}

func (h *Hub) broadcastToEvent(eventID uint, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env, err := json.Marshal(outboundEnvelope{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.uiConns[eventID]))
	for _, c := range h.uiConns[eventID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Send(env)
	}
}

// BroadcastSessionPatch implements processor.Broadcaster.
func (h *Hub) BroadcastSessionPatch(_ context.Context, eventID uint, patch sessionstate.SessionStatePatch) error {
	h.broadcastToEvent(eventID, eventSessionPatch, patch)
	return nil
}

// BroadcastCarPatches implements processor.Broadcaster.
func (h *Hub) BroadcastCarPatches(_ context.Context, eventID uint, patches map[string]sessionstate.CarPositionPatch) error {
	list := make([]sessionstate.CarPositionPatch, 0, len(patches))
	for _, p := range patches {
		list = append(list, p)
	}
	h.broadcastToEvent(eventID, eventCarPatches, list)
	return nil
}

// BroadcastReset implements processor.Broadcaster.
func (h *Hub) BroadcastReset(_ context.Context, eventID uint) error {
	h.broadcastToEvent(eventID, eventReset, struct{}{})
	return nil
}

// BroadcastControlLog implements processor.Broadcaster. Updates fan out
// both to the event's general group (legacy v1 behavior) and to each car's
// dedicated control-log subscriber set.
func (h *Hub) BroadcastControlLog(_ context.Context, eventID uint, updates []controllog.Update) error {
	for _, u := range updates {
		data, err := json.Marshal(u.Car)
		if err != nil {
			continue
		}
		env, err := json.Marshal(outboundEnvelope{Event: eventControlLog, Data: data})
		if err != nil {
			continue
		}
		h.sendToConns(h.connsForEvent(eventID), env)

		key := controlKey(eventID, u.Car.Number)
		h.mu.RLock()
		conns := make([]*Connection, 0, len(h.controlConn[key]))
		for _, c := range h.controlConn[key] {
			conns = append(conns, c)
		}
		h.mu.RUnlock()
		for _, c := range conns {
			c.Send(env)
		}
	}
	return nil
}

// BroadcastSnapshot implements processor.Broadcaster. msgpackBody goes to
// ReceiveSnapshot for current clients; gzipJSONBody goes to ReceiveMessage
// for v1 clients that never adopted the binary codec.
func (h *Hub) BroadcastSnapshot(_ context.Context, eventID uint, msgpackBody, gzipJSONBody []byte) error {
	mpEnv, err := json.Marshal(outboundEnvelope{Event: eventSnapshot, Data: json.RawMessage(mustQuoteBytes(msgpackBody))})
	if err == nil {
		h.sendToConns(h.connsForEvent(eventID), mpEnv)
	}
	legacyEnv, err := json.Marshal(outboundEnvelope{Event: eventMessage, Data: json.RawMessage(mustQuoteBytes(gzipJSONBody))})
	if err == nil {
		h.sendToConns(h.connsForEvent(eventID), legacyEnv)
	}
	return nil
}

func (h *Hub) connsForEvent(eventID uint) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.uiConns[eventID]))
	for _, c := range h.uiConns[eventID] {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) sendToConns(conns []*Connection, payload []byte) {
	for _, c := range conns {
		c.Send(payload)
	}
}

// mustQuoteBytes base64-JSON-encodes raw bytes for embedding as a
// json.RawMessage data field, since msgpack/gzip payloads are binary.
func mustQuoteBytes(b []byte) []byte {
	quoted, err := json.Marshal(b) // []byte marshals as a base64 JSON string
	if err != nil {
		return []byte("null")
	}
	return quoted
}

