package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"fireplane/internal/config"
)

// Demo simulates a drone without hardware. Position jumps to commanded
// waypoints, battery drains per maneuver, and optional delays approximate
// real flight pacing. Safe for concurrent use: command handlers and the
// mission goroutine share it.
type Demo struct {
	droneID string
	cfg     config.DemoControlConfig

	mu        sync.Mutex
	connected bool
	armed     bool
	mode      FlightMode
	lat, lon  float64
	alt       float64
	speed     float64
	heading   float64
	battery   float64
}

// NewDemo creates a simulated controller for the given drone.
func NewDemo(droneID string, cfg config.DemoControlConfig) *Demo {
	return &Demo{
		droneID: droneID,
		cfg:     cfg,
		mode:    ModeIdle,
		battery: 100,
	}
}

func (d *Demo) Connect(ctx context.Context) error {
	if err := d.pause(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

func (d *Demo) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.armed = false
	d.mode = ModeIdle
}

func (d *Demo) Arm(ctx context.Context) error {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return errors.New("cannot arm: not connected")
	}
	if err := d.pause(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	return nil
}

func (d *Demo) Disarm() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	d.speed = 0
	return nil
}

func (d *Demo) Takeoff(ctx context.Context, altitudeM float64) error {
	d.mu.Lock()
	armed := d.armed
	d.mu.Unlock()
	if !armed {
		return errors.New("cannot takeoff: not armed")
	}
	if err := d.pause(ctx, time.Second); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alt = altitudeM
	d.mode = ModeGuided
	d.battery -= 1.0
	return nil
}

func (d *Demo) Land(ctx context.Context) error {
	if err := d.pause(ctx, time.Second); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alt = 0
	d.speed = 0
	d.mode = ModeLand
	return nil
}

func (d *Demo) Goto(ctx context.Context, lat, lon, alt float64) error {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return errors.New("cannot goto: not armed")
	}
	d.heading = bearing(d.lat, d.lon, lat, lon)
	d.mu.Unlock()

	if err := d.pause(ctx, 200*time.Millisecond); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lat, d.lon, d.alt = lat, lon, alt
	d.speed = 5.0
	d.battery -= d.cfg.BatteryDrainRate
	if d.battery < 0 {
		d.battery = 0
	}
	return nil
}

func (d *Demo) ReturnToLaunch(ctx context.Context) error {
	d.mu.Lock()
	d.mode = ModeRTL
	d.mu.Unlock()
	if err := d.pause(ctx, time.Second); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alt = 0
	d.speed = 0
	return nil
}

func (d *Demo) EmergencyStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = ModeEmergency
	d.speed = 0
	d.alt = 0
	return nil
}

func (d *Demo) Connected() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.connected }
func (d *Demo) Armed() bool     { d.mu.Lock(); defer d.mu.Unlock(); return d.armed }
func (d *Demo) Battery() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery
}

func (d *Demo) Position() (float64, float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lat, d.lon, d.alt
}

func (d *Demo) Speed() float64   { d.mu.Lock(); defer d.mu.Unlock(); return d.speed }
func (d *Demo) Heading() float64 { d.mu.Lock(); defer d.mu.Unlock(); return d.heading }
func (d *Demo) Mode() FlightMode { d.mu.Lock(); defer d.mu.Unlock(); return d.mode }

// pause sleeps for the simulated maneuver duration, or returns early when
// ctx is cancelled. A no-op unless simulate_delays is enabled.
func (d *Demo) pause(ctx context.Context, dur time.Duration) error {
	if !d.cfg.SimulateDelays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}

// bearing computes the initial bearing in degrees from one fix to another.
func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
