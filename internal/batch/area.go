// Package batch runs scout missions over a declarative list of flight
// areas, sequentially or with a bounded worker pool.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fireplane/internal/orchestrator"
)

// Area is one entry of a mission area file.
type Area struct {
	Name     string                  `yaml:"name" json:"name"`
	Priority string                  `yaml:"priority" json:"priority"`
	Corners  orchestrator.FlightArea `yaml:"corners" json:"corners"`
}

// AreaFile is the on-disk format, YAML or JSON keyed by extension:
//
//	areas:
//	  - name: north-ridge
//	    priority: high
//	    corners:
//	      corner_a: {latitude: 33.2271, longitude: -96.8252}
//	      ...
type AreaFile struct {
	Areas []Area `yaml:"areas" json:"areas"`
}

// LoadAreas reads a mission area file. The list may be empty only if the
// file itself is empty of areas, which is reported as an error.
func LoadAreas(path string) ([]Area, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read area file: %w", err)
	}

	var file AreaFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported area file extension %q (want .yaml, .yml, or .json)", ext)
	}

	if len(file.Areas) == 0 {
		return nil, fmt.Errorf("%s defines no areas", path)
	}
	return file.Areas, nil
}

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

// Validate checks one area entry. Invalid entries fail their mission slot
// without touching the drone pool.
func (a *Area) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("area name is required")
	}
	if a.Priority == "" {
		a.Priority = "medium"
	}
	if !priorities[a.Priority] {
		return fmt.Errorf("area %s: invalid priority %q (want low, medium, or high)", a.Name, a.Priority)
	}

	corners := []struct {
		label string
		c     orchestrator.Coordinate
	}{
		{"corner_a", a.Corners.CornerA},
		{"corner_b", a.Corners.CornerB},
		{"corner_c", a.Corners.CornerC},
		{"corner_d", a.Corners.CornerD},
	}
	for _, corner := range corners {
		if corner.c.Latitude < -90 || corner.c.Latitude > 90 {
			return fmt.Errorf("area %s: %s latitude %v out of range", a.Name, corner.label, corner.c.Latitude)
		}
		if corner.c.Longitude < -180 || corner.c.Longitude > 180 {
			return fmt.Errorf("area %s: %s longitude %v out of range", a.Name, corner.label, corner.c.Longitude)
		}
		if corner.c.Latitude == 0 && corner.c.Longitude == 0 {
			return fmt.Errorf("area %s: %s is missing", a.Name, corner.label)
		}
	}
	return nil
}

// Center returns the midpoint of the area rectangle.
func (a *Area) Center() (lat, lon float64) {
	lat = (a.Corners.CornerA.Latitude + a.Corners.CornerB.Latitude +
		a.Corners.CornerC.Latitude + a.Corners.CornerD.Latitude) / 4
	lon = (a.Corners.CornerA.Longitude + a.Corners.CornerB.Longitude +
		a.Corners.CornerC.Longitude + a.Corners.CornerD.Longitude) / 4
	return lat, lon
}
