package controller

import (
	"fmt"

	"fireplane/internal/config"
)

// New selects a controller implementation from configuration. Modes "demo"
// and "simulation" build the simulated controller; "hardware" builds the
// MAVLink serial controller.
func New(droneID string, cfg config.DroneControlConfig) (Controller, error) {
	switch cfg.Mode {
	case "demo", "simulation":
		return NewDemo(droneID, cfg.Demo), nil
	case "hardware":
		return NewMAVLink(droneID, cfg.Hardware), nil
	default:
		return nil, fmt.Errorf("unknown drone control mode %q (want demo, simulation, or hardware)", cfg.Mode)
	}
}
