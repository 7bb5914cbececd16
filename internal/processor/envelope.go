// Package processor runs one event's ingest -> decode -> aggregate ->
// enrich -> broadcast -> persist pipeline (§4.C).
package processor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Protocol identifies which wire codec an ingested frame's payload uses.
type Protocol string

const (
	ProtocolRMonitor  Protocol = "rmonitor"
	ProtocolMultiloop Protocol = "multiloop"
)

// Envelope is the JSON shape stored as the value of each RMonitor stream
// entry (§6.4): relay ingress tags every frame with which codec produced
// it, since a single event can be fed by either protocol depending on the
// timing hardware at that track, but never both within one session.
type Envelope struct {
	Protocol Protocol `json:"protocol"`
	Data     string   `json:"data"`
}

// EncodeRMonitorFrame wraps a raw RMonitor line for the bus stream.
func EncodeRMonitorFrame(line string) (string, error) {
	body, err := json.Marshal(Envelope{Protocol: ProtocolRMonitor, Data: line})
	if err != nil {
		return "", fmt.Errorf("processor: encode rmonitor envelope: %w", err)
	}
	return string(body), nil
}

// EncodeMultiloopFrame wraps a raw length-prefixed Multiloop frame (as
// produced by multiloop.EncodeFrame) for the bus stream.
func EncodeMultiloopFrame(raw []byte) (string, error) {
	body, err := json.Marshal(Envelope{Protocol: ProtocolMultiloop, Data: base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return "", fmt.Errorf("processor: encode multiloop envelope: %w", err)
	}
	return string(body), nil
}

func decodeEnvelope(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, fmt.Errorf("processor: decode envelope: %w", err)
	}
	return env, nil
}

func decodeMultiloopBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("processor: decode multiloop payload: %w", err)
	}
	return raw, nil
}
