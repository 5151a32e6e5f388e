package controller

import (
	"context"
	"fmt"
	"sync"

	"fireplane/internal/config"
)

// MAVLink drives a physical autopilot over a serial MAVLink link. The wire
// protocol lives behind this type so the rest of the agent only sees the
// Controller interface.
//
// TODO: wire up the serial transport; commands currently fail until a link
// implementation lands.
type MAVLink struct {
	droneID string
	cfg     config.HardwareConfig

	mu        sync.Mutex
	connected bool
}

// NewMAVLink creates a hardware controller for the given serial endpoint.
func NewMAVLink(droneID string, cfg config.HardwareConfig) *MAVLink {
	return &MAVLink{droneID: droneID, cfg: cfg}
}

func (m *MAVLink) Connect(ctx context.Context) error {
	return fmt.Errorf("mavlink: serial link %s not implemented", m.cfg.ConnectionString)
}

func (m *MAVLink) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MAVLink) Arm(ctx context.Context) error     { return m.errNotConnected("arm") }
func (m *MAVLink) Disarm() error                     { return m.errNotConnected("disarm") }
func (m *MAVLink) Takeoff(ctx context.Context, altitudeM float64) error {
	return m.errNotConnected("takeoff")
}
func (m *MAVLink) Land(ctx context.Context) error { return m.errNotConnected("land") }
func (m *MAVLink) Goto(ctx context.Context, lat, lon, alt float64) error {
	return m.errNotConnected("goto")
}
func (m *MAVLink) ReturnToLaunch(ctx context.Context) error { return m.errNotConnected("rtl") }
func (m *MAVLink) EmergencyStop() error                     { return m.errNotConnected("emergency stop") }

func (m *MAVLink) Connected() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.connected }
func (m *MAVLink) Armed() bool     { return false }
func (m *MAVLink) Battery() float64 { return 0 }
func (m *MAVLink) Position() (float64, float64, float64) { return 0, 0, 0 }
func (m *MAVLink) Speed() float64   { return 0 }
func (m *MAVLink) Heading() float64 { return 0 }
func (m *MAVLink) Mode() FlightMode { return ModeIdle }

func (m *MAVLink) errNotConnected(op string) error {
	return fmt.Errorf("mavlink: %s: not connected", op)
}
