// Package bus wraps the Redis-backed key layout shared by every process in
// the pipeline (§6.4): relay heartbeats, the per-event RMonitor stream,
// driver identity, control-log penalties, UI connection sets, and the two
// cluster-wide pub/sub signals.
package bus

import "fmt"

const (
	keyRelayEventConnections = "RELAY_EVENT_CONNECTIONS"
	channelSendFullStatus    = "SEND_FULL_STATUS"
	channelSendControlLog    = "SEND_CONTROL_LOG"
	keyControlLogCarPenaltiesFmt = "CONTROL_LOG_CAR_PENALTIES:%d"
	keyControlLogFmt             = "CONTROL_LOG:%d"
	keyControlLogCarFmt          = "CONTROL_LOG_CAR:%d:%s"
	keyStatusEventConnectionsFmt = "STATUS_EVENT_CONNECTIONS:%d"
	channelEventShutdownSignal   = "EVENT_SHUTDOWN_SIGNAL"
	keyEventDriverFmt       = "EVENT_DRIVER:%d:%s"
	keyDriverTransponderFmt = "DRIVER_TRANSPONDER:%d"
	rmonStreamFieldFmt      = "rmon:%d:%d"
)

// EventRMONStreamField returns the stream-entry field name carrying
// RMonitor payloads for (eventID, sessionID).
func EventRMONStreamField(eventID, sessionID uint) string {
	return fmt.Sprintf(rmonStreamFieldFmt, eventID, sessionID)
}

func controlLogCarPenaltiesKey(eventID uint) string {
	return fmt.Sprintf(keyControlLogCarPenaltiesFmt, eventID)
}

func controlLogKey(eventID uint) string {
	return fmt.Sprintf(keyControlLogFmt, eventID)
}

func controlLogCarKey(eventID uint, carNumber string) string {
	return fmt.Sprintf(keyControlLogCarFmt, eventID, carNumber)
}

func statusEventConnectionsKey(eventID uint) string {
	return fmt.Sprintf(keyStatusEventConnectionsFmt, eventID)
}

func eventDriverKey(eventID uint, carNumber string) string {
	return fmt.Sprintf(keyEventDriverFmt, eventID, carNumber)
}

func driverTransponderKey(transponderID uint32) string {
	return fmt.Sprintf(keyDriverTransponderFmt, transponderID)
}

func relayHeartbeatField(eventID uint) string {
	return fmt.Sprintf("relay-heartbeat-%d", eventID)
}
