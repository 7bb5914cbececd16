package bus

import "context"

// Client is the bus/cache surface every process in the pipeline depends
// on. The Redis implementation backs production; Fake backs unit tests
// that exercise components wired against Client without a live Redis.
type Client interface {
	// Ping reports whether the bus is reachable, used by the health
	// registry's readiness/startup checkers.
	Ping(ctx context.Context) error

	SetRelayHeartbeat(ctx context.Context, eventID uint, entry RelayConnectionEventEntry) error
	RelayHeartbeats(ctx context.Context) (map[uint]RelayConnectionEventEntry, error)
	DeleteRelayHeartbeat(ctx context.Context, eventID uint) error

	AppendRMonitorFrame(ctx context.Context, eventID, sessionID uint, payload string) (string, error)
	ReadRMonitorStream(ctx context.Context, eventID, sessionID uint, afterID string) ([]StreamEntry, error)

	PublishSendFullStatus(ctx context.Context, connectionID string) error
	SubscribeSendFullStatus(ctx context.Context) (<-chan string, func(), error)
	PublishSendControlLog(ctx context.Context, connectionID string) error
	SubscribeSendControlLog(ctx context.Context) (<-chan string, func(), error)

	SetEventDriver(ctx context.Context, eventID uint, carNumber string, rec DriverRecord) error
	GetEventDriver(ctx context.Context, eventID uint, carNumber string) (*DriverRecord, error)
	SetDriverTransponder(ctx context.Context, transponderID uint32, rec DriverRecord) error
	GetDriverTransponder(ctx context.Context, transponderID uint32) (*DriverRecord, error)

	SetControlLog(ctx context.Context, eventID uint, doc string) error
	GetControlLog(ctx context.Context, eventID uint) (string, error)
	SetControlLogCar(ctx context.Context, eventID uint, carNumber, doc string) error
	GetControlLogCar(ctx context.Context, eventID uint, carNumber string) (string, error)
	SetCarPenalty(ctx context.Context, eventID uint, carNumber string, p CarPenalty) error
	CarPenalties(ctx context.Context, eventID uint) (map[string]CarPenalty, error)
	DeleteControlLogCar(ctx context.Context, eventID uint, carNumber string) error

	AddStatusConnection(ctx context.Context, eventID uint, connectionID string) error
	RemoveStatusConnection(ctx context.Context, eventID uint, connectionID string) error
	StatusConnections(ctx context.Context, eventID uint) ([]string, error)

	PublishShutdownSignal(ctx context.Context, eventIDs []uint) error
	SubscribeShutdownSignal(ctx context.Context) (<-chan []uint, func(), error)

	Close() error
}
