package bus

import "time"

// RelayConnectionEventEntry is the JSON value stored per field in
// RELAY_EVENT_CONNECTIONS, refreshed on every relay heartbeat.
type RelayConnectionEventEntry struct {
	EventID      uint      `json:"eventId"`
	ConnectionID string    `json:"connectionId"`
	LastSeen     time.Time `json:"lastSeen"`
}

// DriverRecord is the JSON value stored under EVENT_DRIVER_KEY and
// DRIVER_TRANSPONDER_KEY.
type DriverRecord struct {
	EventID       uint   `json:"eventId"`
	CarNumber     string `json:"carNumber"`
	TransponderID uint32 `json:"transponderId"`
	DriverID      string `json:"driverId"`
	DriverName    string `json:"driverName"`
}

// CarPenalty is the aggregated (warnings, laps) value stored per car in the
// CONTROL_LOG_CAR_PENALTIES hash.
type CarPenalty struct {
	Warnings int `json:"warnings"`
	Laps     int `json:"laps"`
}

// StreamEntry is one RMonitor payload read back off the per-event stream.
type StreamEntry struct {
	ID      string
	Payload string
}
