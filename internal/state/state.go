// Package state holds the relay's single shared telemetry record.
//
// All writes come from the Message Router goroutine. The lock exists only so
// HTTP probes can read a consistent snapshot from other goroutines.
package state

import (
	"sync"

	"github.com/rickgao/rota-relay/internal/model"
)

// State is the device status, current route telemetry, route progress flag
// and the read-only route history of one server instance.
type State struct {
	mu         sync.RWMutex
	devices    model.DeviceStatus
	route      model.RouteTelemetry
	inProgress bool
	history    []model.RouteHistoryEntry
}

// New creates a State with default telemetry and the given route history.
// The history is copied and never modified afterwards.
func New(history []model.RouteHistoryEntry) *State {
	h := make([]model.RouteHistoryEntry, len(history))
	copy(h, history)

	return &State{
		route:   model.DefaultRouteTelemetry(),
		history: h,
	}
}

// ApplyDeviceUpdate overwrites the device flags present in u.
func (s *State) ApplyDeviceUpdate(u model.DeviceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Bracelete != nil {
		s.devices.Bracelete = *u.Bracelete
	}
	if u.Oculos != nil {
		s.devices.Oculos = *u.Oculos
	}
}

// ApplyTelemetryUpdate overwrites the telemetry fields present in u.
func (s *State) ApplyTelemetryUpdate(u model.TelemetryUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Distance != nil {
		s.route.Distance = *u.Distance
	}
	if u.Speed != nil {
		s.route.Speed = *u.Speed
	}
	if u.Location != nil {
		s.route.Location = *u.Location
	}
	if u.Latitude != nil {
		s.route.Latitude = *u.Latitude
	}
	if u.Longitude != nil {
		s.route.Longitude = *u.Longitude
	}
	if u.Temperature != nil {
		s.route.Temperature = copyFloat(u.Temperature)
	}
	if u.Humidity != nil {
		s.route.Humidity = copyFloat(u.Humidity)
	}
}

// SetRouteInProgress sets the route progress flag.
func (s *State) SetRouteInProgress(inProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = inProgress
}

// RouteInProgress reports the route progress flag.
func (s *State) RouteInProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inProgress
}

// Snapshot returns a deep copy of the current state. Nothing in the result
// aliases memory owned by s.
func (s *State) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route := s.route
	route.Temperature = copyFloat(s.route.Temperature)
	route.Humidity = copyFloat(s.route.Humidity)

	history := make([]model.RouteHistoryEntry, len(s.history))
	copy(history, s.history)

	return model.Snapshot{
		Devices: s.devices,
		Route: model.CurrentRoute{
			InProgress:     s.inProgress,
			RouteTelemetry: route,
		},
		History: history,
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
