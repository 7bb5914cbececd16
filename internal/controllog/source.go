package controllog

import (
	"context"

	"github.com/zulandar/racetiming/internal/sessionstate"
)

// Source fetches the current full set of per-car control logs for an event
// from an external sanctioning-body system.
type Source interface {
	Fetch(ctx context.Context, eventID uint) (map[string]sessionstate.CarControlLogs, error)
}

// Factory constructs a Source from a per-organization control-log-type
// string (§6.5 Organizations.control-log-type). Unknown types fall back to
// "none".
type Factory func(httpClient HTTPDoer, baseURL string) Source

var registry = map[string]Factory{
	"generic-json": newGenericJSONSource,
	"none":         func(HTTPDoer, string) Source { return noneSource{} },
}

// NewSource looks up the registered factory for controlLogType and
// constructs a Source, defaulting to the no-op source for an unknown or
// empty type.
func NewSource(controlLogType string, httpClient HTTPDoer, baseURL string) Source {
	factory, ok := registry[controlLogType]
	if !ok {
		factory = registry["none"]
	}
	return factory(httpClient, baseURL)
}

type noneSource struct{}

func (noneSource) Fetch(context.Context, uint) (map[string]sessionstate.CarControlLogs, error) {
	return nil, nil
}
