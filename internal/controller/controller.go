// Package controller provides the flight-controller interface for drone
// agents. Implementations include a simulated demo controller and a
// MAVLink serial controller; selection is configuration-driven.
package controller

import "context"

// FlightMode mirrors the autopilot's flight mode.
type FlightMode string

const (
	ModeIdle      FlightMode = "IDLE"
	ModeTakeoff   FlightMode = "TAKEOFF"
	ModeGuided    FlightMode = "GUIDED"
	ModeAuto      FlightMode = "AUTO"
	ModeRTL       FlightMode = "RTL"
	ModeLand      FlightMode = "LAND"
	ModeEmergency FlightMode = "EMERGENCY"
)

// Controller is the capability set the agent drives a drone through.
// Blocking operations honor ctx for cancellation.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()

	Arm(ctx context.Context) error
	Disarm() error

	Takeoff(ctx context.Context, altitudeM float64) error
	Land(ctx context.Context) error
	Goto(ctx context.Context, lat, lon, alt float64) error
	ReturnToLaunch(ctx context.Context) error

	// EmergencyStop halts the current maneuver and commands an immediate
	// safe descent. Accepted in any state.
	EmergencyStop() error

	Connected() bool
	Armed() bool
	Battery() float64
	Position() (lat, lon, alt float64)
	Speed() float64
	Heading() float64
	Mode() FlightMode
}
