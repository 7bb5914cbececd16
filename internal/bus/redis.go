package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisClient is the production Client backed by a single go-redis
// connection pool.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient dials addr (host:port) with the given password (empty for
// none) and database index.
func NewRedisClient(addr, password string, db int) *RedisClient {
	return &RedisClient{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisClient) Close() error { return c.rdb.Close() }

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("bus: ping: %w", err)
	}
	return nil
}

func (c *RedisClient) SetRelayHeartbeat(ctx context.Context, eventID uint, entry RelayConnectionEventEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("bus: marshal relay heartbeat: %w", err)
	}
	if err := c.rdb.HSet(ctx, keyRelayEventConnections, relayHeartbeatField(eventID), body).Err(); err != nil {
		return fmt.Errorf("bus: set relay heartbeat: %w", err)
	}
	return nil
}

func (c *RedisClient) RelayHeartbeats(ctx context.Context) (map[uint]RelayConnectionEventEntry, error) {
	raw, err := c.rdb.HGetAll(ctx, keyRelayEventConnections).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: read relay heartbeats: %w", err)
	}
	out := make(map[uint]RelayConnectionEventEntry, len(raw))
	for _, v := range raw {
		var entry RelayConnectionEventEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // malformed entry: skip rather than fail the whole scan
		}
		out[entry.EventID] = entry
	}
	return out, nil
}

func (c *RedisClient) DeleteRelayHeartbeat(ctx context.Context, eventID uint) error {
	if err := c.rdb.HDel(ctx, keyRelayEventConnections, relayHeartbeatField(eventID)).Err(); err != nil {
		return fmt.Errorf("bus: delete relay heartbeat: %w", err)
	}
	return nil
}

func (c *RedisClient) AppendRMonitorFrame(ctx context.Context, eventID, sessionID uint, payload string) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: fmt.Sprintf("stream:%d:%d", eventID, sessionID),
		Values: map[string]any{EventRMONStreamField(eventID, sessionID): payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("bus: append rmonitor frame: %w", err)
	}
	return id, nil
}

func (c *RedisClient) ReadRMonitorStream(ctx context.Context, eventID, sessionID uint, afterID string) ([]StreamEntry, error) {
	if afterID == "" {
		afterID = "0"
	}
	field := EventRMONStreamField(eventID, sessionID)
	stream := fmt.Sprintf("stream:%d:%d", eventID, sessionID)
	msgs, err := c.rdb.XRange(ctx, stream, "("+afterID, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("bus: read rmonitor stream: %w", err)
	}
	out := make([]StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		v, ok := m.Values[field]
		if !ok {
			continue
		}
		s, _ := v.(string)
		out = append(out, StreamEntry{ID: m.ID, Payload: s})
	}
	return out, nil
}

func (c *RedisClient) publish(ctx context.Context, channel, payload string) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", channel, err)
	}
	return nil
}

func (c *RedisClient) subscribeStrings(ctx context.Context, channel string) (<-chan string, func(), error) {
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("bus: subscribe %s: %w", channel, err)
	}
	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}

func (c *RedisClient) PublishSendFullStatus(ctx context.Context, connectionID string) error {
	return c.publish(ctx, channelSendFullStatus, connectionID)
}

func (c *RedisClient) SubscribeSendFullStatus(ctx context.Context) (<-chan string, func(), error) {
	return c.subscribeStrings(ctx, channelSendFullStatus)
}

func (c *RedisClient) PublishSendControlLog(ctx context.Context, connectionID string) error {
	return c.publish(ctx, channelSendControlLog, connectionID)
}

func (c *RedisClient) SubscribeSendControlLog(ctx context.Context) (<-chan string, func(), error) {
	return c.subscribeStrings(ctx, channelSendControlLog)
}

func (c *RedisClient) SetEventDriver(ctx context.Context, eventID uint, carNumber string, rec DriverRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bus: marshal driver record: %w", err)
	}
	if err := c.rdb.Set(ctx, eventDriverKey(eventID, carNumber), body, 0).Err(); err != nil {
		return fmt.Errorf("bus: set event driver: %w", err)
	}
	return nil
}

func (c *RedisClient) GetEventDriver(ctx context.Context, eventID uint, carNumber string) (*DriverRecord, error) {
	body, err := c.rdb.Get(ctx, eventDriverKey(eventID, carNumber)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: get event driver: %w", err)
	}
	var rec DriverRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("bus: unmarshal driver record: %w", err)
	}
	return &rec, nil
}

func (c *RedisClient) SetDriverTransponder(ctx context.Context, transponderID uint32, rec DriverRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bus: marshal driver record: %w", err)
	}
	if err := c.rdb.Set(ctx, driverTransponderKey(transponderID), body, 0).Err(); err != nil {
		return fmt.Errorf("bus: set driver transponder: %w", err)
	}
	return nil
}

func (c *RedisClient) GetDriverTransponder(ctx context.Context, transponderID uint32) (*DriverRecord, error) {
	body, err := c.rdb.Get(ctx, driverTransponderKey(transponderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: get driver transponder: %w", err)
	}
	var rec DriverRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("bus: unmarshal driver record: %w", err)
	}
	return &rec, nil
}

func (c *RedisClient) SetControlLog(ctx context.Context, eventID uint, doc string) error {
	if err := c.rdb.Set(ctx, controlLogKey(eventID), doc, 0).Err(); err != nil {
		return fmt.Errorf("bus: set control log: %w", err)
	}
	return nil
}

func (c *RedisClient) GetControlLog(ctx context.Context, eventID uint) (string, error) {
	doc, err := c.rdb.Get(ctx, controlLogKey(eventID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bus: get control log: %w", err)
	}
	return doc, nil
}

func (c *RedisClient) SetControlLogCar(ctx context.Context, eventID uint, carNumber, doc string) error {
	if err := c.rdb.Set(ctx, controlLogCarKey(eventID, carNumber), doc, 0).Err(); err != nil {
		return fmt.Errorf("bus: set control log car: %w", err)
	}
	return nil
}

func (c *RedisClient) GetControlLogCar(ctx context.Context, eventID uint, carNumber string) (string, error) {
	doc, err := c.rdb.Get(ctx, controlLogCarKey(eventID, carNumber)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bus: get control log car: %w", err)
	}
	return doc, nil
}

func (c *RedisClient) DeleteControlLogCar(ctx context.Context, eventID uint, carNumber string) error {
	if err := c.rdb.Del(ctx, controlLogCarKey(eventID, carNumber)).Err(); err != nil {
		return fmt.Errorf("bus: delete control log car: %w", err)
	}
	return nil
}

// Only the CarPenalty value is written; a hash field named by
// legacyCarPenalityField is skipped on read rather than decoded as a car.
// See DESIGN.md for why there is no second write.
const legacyCarPenalityField = "legacy"

func (c *RedisClient) SetCarPenalty(ctx context.Context, eventID uint, carNumber string, p CarPenalty) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("bus: marshal car penalty: %w", err)
	}
	if err := c.rdb.HSet(ctx, controlLogCarPenaltiesKey(eventID), carNumber, body).Err(); err != nil {
		return fmt.Errorf("bus: set car penalty: %w", err)
	}
	return nil
}

func (c *RedisClient) CarPenalties(ctx context.Context, eventID uint) (map[string]CarPenalty, error) {
	raw, err := c.rdb.HGetAll(ctx, controlLogCarPenaltiesKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: read car penalties: %w", err)
	}
	out := make(map[string]CarPenalty, len(raw))
	for car, v := range raw {
		if car == legacyCarPenalityField {
			continue
		}
		var p CarPenalty
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out[car] = p
	}
	return out, nil
}

func (c *RedisClient) AddStatusConnection(ctx context.Context, eventID uint, connectionID string) error {
	if err := c.rdb.SAdd(ctx, statusEventConnectionsKey(eventID), connectionID).Err(); err != nil {
		return fmt.Errorf("bus: add status connection: %w", err)
	}
	return nil
}

func (c *RedisClient) RemoveStatusConnection(ctx context.Context, eventID uint, connectionID string) error {
	if err := c.rdb.SRem(ctx, statusEventConnectionsKey(eventID), connectionID).Err(); err != nil {
		return fmt.Errorf("bus: remove status connection: %w", err)
	}
	return nil
}

func (c *RedisClient) StatusConnections(ctx context.Context, eventID uint) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, statusEventConnectionsKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: list status connections: %w", err)
	}
	return ids, nil
}

func (c *RedisClient) PublishShutdownSignal(ctx context.Context, eventIDs []uint) error {
	body, err := json.Marshal(eventIDs)
	if err != nil {
		return fmt.Errorf("bus: marshal shutdown signal: %w", err)
	}
	return c.publish(ctx, channelEventShutdownSignal, string(body))
}

func (c *RedisClient) SubscribeShutdownSignal(ctx context.Context) (<-chan []uint, func(), error) {
	raw, cancel, err := c.subscribeStrings(ctx, channelEventShutdownSignal)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []uint)
	go func() {
		defer close(out)
		for payload := range raw {
			var ids []uint
			if err := json.Unmarshal([]byte(payload), &ids); err != nil {
				continue
			}
			select {
			case out <- ids:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
