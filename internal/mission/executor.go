// Package mission executes scan and suppression flights through a flight
// controller, at the granularity the orchestrator cares about: hotspot
// counts and data paths.
package mission

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"fireplane/internal/controller"
	"fireplane/internal/logger"
	"fireplane/pkg/api"
)

// Waypoint is one point of a planned sweep.
type Waypoint struct {
	Lat float64
	Lon float64
	Alt float64
}

// ScoutResult is what a scan flight reports back.
type ScoutResult struct {
	HotspotsDetected int
	Hotspots         []api.HotspotAlert
	DataPath         string
	Duration         time.Duration
}

// Executor flies missions on a controller. One executor per agent.
type Executor struct {
	droneID string
	ctrl    controller.Controller
	log     *slog.Logger

	// ThermalThresholdC is the temperature above which a sample counts as
	// a hotspot.
	ThermalThresholdC float64

	// LegSpacing controls serpentine sweep density in degrees.
	LegSpacing float64

	// hotspotChance simulates the thermal pipeline; production agents get
	// readings from the sensor module instead.
	hotspotChance float64
	rng           *rand.Rand
}

// NewExecutor creates a mission executor for the drone.
func NewExecutor(droneID string, ctrl controller.Controller, log *slog.Logger) *Executor {
	return &Executor{
		droneID:           droneID,
		ctrl:              ctrl,
		log:               log,
		ThermalThresholdC: 50,
		LegSpacing:        0.0002,
		hotspotChance:     0.15,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExecuteScout flies a serpentine sweep over the task rectangle and returns
// the hotspots observed. Cancelling ctx (abort/RTL/kill) stops the sweep at
// the next waypoint and returns ctx's error.
func (e *Executor) ExecuteScout(ctx context.Context, taskID string, cfg api.MissionConfig) (*ScoutResult, error) {
	log := logger.FromContext(ctx, e.log).With("task_id", taskID)
	start := time.Now()

	if err := e.prepare(ctx, cfg.CruiseAltitude); err != nil {
		return nil, err
	}
	defer e.finish()

	waypoints := SerpentinePath(cfg, e.LegSpacing)
	log.Info("mission sweep planned", "waypoints", len(waypoints))

	result := &ScoutResult{
		DataPath: fmt.Sprintf("data/%s/%s", e.droneID, taskID),
	}
	for i, wp := range waypoints {
		if err := e.ctrl.Goto(ctx, wp.Lat, wp.Lon, wp.Alt); err != nil {
			return nil, fmt.Errorf("waypoint %d/%d: %w", i+1, len(waypoints), err)
		}

		if temp, hit := e.sampleThermal(); hit {
			alert := api.HotspotAlert{
				Latitude:     wp.Lat,
				Longitude:    wp.Lon,
				Altitude:     wp.Alt,
				TemperatureC: temp,
				Confidence:   0.75 + e.rng.Float64()*0.2,
				Timestamp:    time.Now().UTC(),
			}
			result.Hotspots = append(result.Hotspots, alert)
			result.HotspotsDetected++
			log.Warn("hotspot detected", "lat", wp.Lat, "lon", wp.Lon, "temperature_c", temp)
		}
	}

	if err := e.ctrl.Land(ctx); err != nil {
		return nil, fmt.Errorf("land: %w", err)
	}

	result.Duration = time.Since(start)
	log.Info("scan complete", "hotspots", result.HotspotsDetected, "duration", result.Duration)
	return result, nil
}

// ExecuteSuppression approaches the center of the task square, performs the
// drop, and verifies. Returns the data path of the run.
func (e *Executor) ExecuteSuppression(ctx context.Context, taskID string, cfg api.MissionConfig) (string, error) {
	log := logger.FromContext(ctx, e.log).With("task_id", taskID)

	if err := e.prepare(ctx, cfg.CruiseAltitude); err != nil {
		return "", err
	}
	defer e.finish()

	targetLat := (cfg.CornerALat + cfg.CornerCLat) / 2
	targetLon := (cfg.CornerALon + cfg.CornerCLon) / 2

	log.Info("approaching fire", "lat", targetLat, "lon", targetLon)
	if err := e.ctrl.Goto(ctx, targetLat, targetLon, cfg.CruiseAltitude); err != nil {
		return "", fmt.Errorf("approach: %w", err)
	}

	// Descend for the drop, release, then climb back to verify.
	if err := e.ctrl.Goto(ctx, targetLat, targetLon, cfg.CruiseAltitude/2); err != nil {
		return "", fmt.Errorf("drop descent: %w", err)
	}
	log.Info("suppressant released")
	if err := e.ctrl.Goto(ctx, targetLat, targetLon, cfg.CruiseAltitude); err != nil {
		return "", fmt.Errorf("verify climb: %w", err)
	}

	if err := e.ctrl.Land(ctx); err != nil {
		return "", fmt.Errorf("land: %w", err)
	}

	log.Info("suppression complete")
	return fmt.Sprintf("data/%s/%s", e.droneID, taskID), nil
}

func (e *Executor) prepare(ctx context.Context, altitude float64) error {
	if !e.ctrl.Connected() {
		if err := e.ctrl.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	if err := e.ctrl.Arm(ctx); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if err := e.ctrl.Takeoff(ctx, altitude); err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}
	return nil
}

func (e *Executor) finish() {
	_ = e.ctrl.Disarm()
}

func (e *Executor) sampleThermal() (float64, bool) {
	if e.rng.Float64() >= e.hotspotChance {
		return 0, false
	}
	return e.ThermalThresholdC + e.rng.Float64()*40, true
}

// SerpentinePath generates a boustrophedon sweep over the rectangle: legs
// run A->B then step toward D, alternating direction each leg. legSpacing
// is the distance between legs in degrees of latitude.
func SerpentinePath(cfg api.MissionConfig, legSpacing float64) []Waypoint {
	if legSpacing <= 0 {
		legSpacing = 0.0002
	}

	latSpan := cfg.CornerDLat - cfg.CornerALat
	legs := int(absFloat(latSpan)/legSpacing) + 1

	var waypoints []Waypoint
	for i := 0; i < legs; i++ {
		frac := float64(i) / float64(maxInt(legs-1, 1))
		lat := cfg.CornerALat + latSpan*frac

		left := Waypoint{Lat: lat, Lon: cfg.CornerALon, Alt: cfg.CruiseAltitude}
		right := Waypoint{Lat: lat, Lon: cfg.CornerBLon, Alt: cfg.CruiseAltitude}
		if i%2 == 0 {
			waypoints = append(waypoints, left, right)
		} else {
			waypoints = append(waypoints, right, left)
		}
	}
	return waypoints
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
