package bus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Fake is an in-memory Client for unit tests that exercise components
// wired against the Client interface without a live Redis.
type Fake struct {
	mu sync.Mutex

	relayHeartbeats map[uint]RelayConnectionEventEntry
	streams         map[string][]StreamEntry
	nextStreamID    map[string]int
	eventDrivers    map[string]DriverRecord
	transponders    map[uint32]DriverRecord
	controlLogs     map[uint]string
	controlLogCars  map[string]string
	carPenalties    map[uint]map[string]CarPenalty
	statusConns     map[uint]map[string]struct{}

	fullStatusSubs   []chan string
	controlLogSubs   []chan string
	shutdownSubs     []chan []uint
}

// NewFake returns a ready-to-use Fake.
func NewFake() *Fake {
	return &Fake{
		relayHeartbeats: make(map[uint]RelayConnectionEventEntry),
		streams:         make(map[string][]StreamEntry),
		nextStreamID:    make(map[string]int),
		eventDrivers:    make(map[string]DriverRecord),
		transponders:    make(map[uint32]DriverRecord),
		controlLogs:     make(map[uint]string),
		controlLogCars:  make(map[string]string),
		carPenalties:    make(map[uint]map[string]CarPenalty),
		statusConns:     make(map[uint]map[string]struct{}),
	}
}

func (f *Fake) Close() error { return nil }

func (f *Fake) Ping(_ context.Context) error { return nil }

func (f *Fake) SetRelayHeartbeat(_ context.Context, eventID uint, entry RelayConnectionEventEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayHeartbeats[eventID] = entry
	return nil
}

func (f *Fake) RelayHeartbeats(_ context.Context) (map[uint]RelayConnectionEventEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint]RelayConnectionEventEntry, len(f.relayHeartbeats))
	for k, v := range f.relayHeartbeats {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) DeleteRelayHeartbeat(_ context.Context, eventID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.relayHeartbeats, eventID)
	return nil
}

func streamKey(eventID, sessionID uint) string {
	return fmt.Sprintf("%d:%d", eventID, sessionID)
}

func (f *Fake) AppendRMonitorFrame(_ context.Context, eventID, sessionID uint, payload string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := streamKey(eventID, sessionID)
	f.nextStreamID[key]++
	id := strconv.Itoa(f.nextStreamID[key])
	f.streams[key] = append(f.streams[key], StreamEntry{ID: id, Payload: payload})
	return id, nil
}

func (f *Fake) ReadRMonitorStream(_ context.Context, eventID, sessionID uint, afterID string) ([]StreamEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := streamKey(eventID, sessionID)
	after, _ := strconv.Atoi(afterID)
	var out []StreamEntry
	for _, e := range f.streams[key] {
		n, _ := strconv.Atoi(e.ID)
		if n > after {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) PublishSendFullStatus(_ context.Context, connectionID string) error {
	f.mu.Lock()
	subs := append([]chan string(nil), f.fullStatusSubs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- connectionID
	}
	return nil
}

func (f *Fake) SubscribeSendFullStatus(_ context.Context) (<-chan string, func(), error) {
	ch := make(chan string, 16)
	f.mu.Lock()
	f.fullStatusSubs = append(f.fullStatusSubs, ch)
	f.mu.Unlock()
	return ch, func() { f.removeFullStatusSub(ch) }, nil
}

func (f *Fake) removeFullStatusSub(target chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.fullStatusSubs {
		if ch == target {
			f.fullStatusSubs = append(f.fullStatusSubs[:i], f.fullStatusSubs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (f *Fake) PublishSendControlLog(_ context.Context, connectionID string) error {
	f.mu.Lock()
	subs := append([]chan string(nil), f.controlLogSubs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- connectionID
	}
	return nil
}

func (f *Fake) SubscribeSendControlLog(_ context.Context) (<-chan string, func(), error) {
	ch := make(chan string, 16)
	f.mu.Lock()
	f.controlLogSubs = append(f.controlLogSubs, ch)
	f.mu.Unlock()
	return ch, func() { f.removeControlLogSub(ch) }, nil
}

func (f *Fake) removeControlLogSub(target chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.controlLogSubs {
		if ch == target {
			f.controlLogSubs = append(f.controlLogSubs[:i], f.controlLogSubs[i+1:]...)
			close(ch)
			return
		}
	}
}

func driverMapKey(eventID uint, carNumber string) string {
	return fmt.Sprintf("%d:%s", eventID, carNumber)
}

func (f *Fake) SetEventDriver(_ context.Context, eventID uint, carNumber string, rec DriverRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventDrivers[driverMapKey(eventID, carNumber)] = rec
	return nil
}

func (f *Fake) GetEventDriver(_ context.Context, eventID uint, carNumber string) (*DriverRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.eventDrivers[driverMapKey(eventID, carNumber)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *Fake) SetDriverTransponder(_ context.Context, transponderID uint32, rec DriverRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transponders[transponderID] = rec
	return nil
}

func (f *Fake) GetDriverTransponder(_ context.Context, transponderID uint32) (*DriverRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.transponders[transponderID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *Fake) SetControlLog(_ context.Context, eventID uint, doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controlLogs[eventID] = doc
	return nil
}

func (f *Fake) GetControlLog(_ context.Context, eventID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controlLogs[eventID], nil
}

func (f *Fake) SetControlLogCar(_ context.Context, eventID uint, carNumber, doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controlLogCars[driverMapKey(eventID, carNumber)] = doc
	return nil
}

func (f *Fake) GetControlLogCar(_ context.Context, eventID uint, carNumber string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.controlLogCars[driverMapKey(eventID, carNumber)], nil
}

func (f *Fake) DeleteControlLogCar(_ context.Context, eventID uint, carNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.controlLogCars, driverMapKey(eventID, carNumber))
	return nil
}

func (f *Fake) SetCarPenalty(_ context.Context, eventID uint, carNumber string, p CarPenalty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.carPenalties[eventID] == nil {
		f.carPenalties[eventID] = make(map[string]CarPenalty)
	}
	f.carPenalties[eventID][carNumber] = p
	return nil
}

func (f *Fake) CarPenalties(_ context.Context, eventID uint) (map[string]CarPenalty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]CarPenalty, len(f.carPenalties[eventID]))
	for k, v := range f.carPenalties[eventID] {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) AddStatusConnection(_ context.Context, eventID uint, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusConns[eventID] == nil {
		f.statusConns[eventID] = make(map[string]struct{})
	}
	f.statusConns[eventID][connectionID] = struct{}{}
	return nil
}

func (f *Fake) RemoveStatusConnection(_ context.Context, eventID uint, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statusConns[eventID], connectionID)
	return nil
}

func (f *Fake) StatusConnections(_ context.Context, eventID uint) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.statusConns[eventID]))
	for id := range f.statusConns[eventID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) PublishShutdownSignal(_ context.Context, eventIDs []uint) error {
	f.mu.Lock()
	subs := append([]chan []uint(nil), f.shutdownSubs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- eventIDs
	}
	return nil
}

func (f *Fake) SubscribeShutdownSignal(_ context.Context) (<-chan []uint, func(), error) {
	ch := make(chan []uint, 16)
	f.mu.Lock()
	f.shutdownSubs = append(f.shutdownSubs, ch)
	f.mu.Unlock()
	return ch, func() { f.removeShutdownSub(ch) }, nil
}

func (f *Fake) removeShutdownSub(target chan []uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.shutdownSubs {
		if ch == target {
			f.shutdownSubs = append(f.shutdownSubs[:i], f.shutdownSubs[i+1:]...)
			close(ch)
			return
		}
	}
}

var _ Client = (*Fake)(nil)
var _ Client = (*RedisClient)(nil)
