package batch

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"fireplane/internal/orchestrator"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validArea() Area {
	return Area{
		Name:     "north-ridge",
		Priority: "high",
		Corners: orchestrator.FlightArea{
			CornerA: orchestrator.Coordinate{Latitude: 33.2270, Longitude: -96.8260},
			CornerB: orchestrator.Coordinate{Latitude: 33.2270, Longitude: -96.8250},
			CornerC: orchestrator.Coordinate{Latitude: 33.2280, Longitude: -96.8250},
			CornerD: orchestrator.Coordinate{Latitude: 33.2280, Longitude: -96.8260},
		},
	}
}

func TestLoadAreasYAML(t *testing.T) {
	path := writeFile(t, "areas.yaml", `
areas:
  - name: north-ridge
    priority: high
    corners:
      corner_a: {latitude: 33.2270, longitude: -96.8260}
      corner_b: {latitude: 33.2270, longitude: -96.8250}
      corner_c: {latitude: 33.2280, longitude: -96.8250}
      corner_d: {latitude: 33.2280, longitude: -96.8260}
  - name: south-creek
    corners:
      corner_a: {latitude: 33.2250, longitude: -96.8260}
      corner_b: {latitude: 33.2250, longitude: -96.8250}
      corner_c: {latitude: 33.2260, longitude: -96.8250}
      corner_d: {latitude: 33.2260, longitude: -96.8260}
`)

	areas, err := LoadAreas(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(areas) != 2 {
		t.Fatalf("expected 2 areas, got %d", len(areas))
	}
	if areas[0].Name != "north-ridge" || areas[0].Priority != "high" {
		t.Errorf("first area %+v", areas[0])
	}
	if areas[0].Corners.CornerA.Latitude != 33.2270 {
		t.Errorf("corner A latitude %v", areas[0].Corners.CornerA.Latitude)
	}
}

func TestLoadAreasJSON(t *testing.T) {
	path := writeFile(t, "areas.json", `{
  "areas": [
    {
      "name": "east-draw",
      "priority": "low",
      "corners": {
        "corner_a": {"latitude": 33.2270, "longitude": -96.8260},
        "corner_b": {"latitude": 33.2270, "longitude": -96.8250},
        "corner_c": {"latitude": 33.2280, "longitude": -96.8250},
        "corner_d": {"latitude": 33.2280, "longitude": -96.8260}
      }
    }
  ]
}`)

	areas, err := LoadAreas(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(areas) != 1 || areas[0].Name != "east-draw" {
		t.Errorf("areas %+v", areas)
	}
}

func TestLoadAreasErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "areas.toml", "whatever"},
		{"empty area list", "areas.yaml", "areas: []"},
		{"malformed yaml", "areas.yaml", "areas: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			if _, err := LoadAreas(path); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadAreas(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestAreaValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Area)
		wantErr bool
	}{
		{"valid", func(a *Area) {}, false},
		{"empty priority defaults", func(a *Area) { a.Priority = "" }, false},
		{"missing name", func(a *Area) { a.Name = "  " }, true},
		{"bad priority", func(a *Area) { a.Priority = "urgent" }, true},
		{"latitude out of range", func(a *Area) { a.Corners.CornerB.Latitude = 91 }, true},
		{"longitude out of range", func(a *Area) { a.Corners.CornerC.Longitude = -181 }, true},
		{"missing corner", func(a *Area) { a.Corners.CornerD = orchestrator.Coordinate{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area := validArea()
			tt.mutate(&area)
			err := area.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestAreaValidateDefaultsPriority(t *testing.T) {
	area := validArea()
	area.Priority = ""
	if err := area.Validate(); err != nil {
		t.Fatal(err)
	}
	if area.Priority != "medium" {
		t.Errorf("priority %q after validation, want medium", area.Priority)
	}
}

func TestAreaCenter(t *testing.T) {
	area := validArea()
	lat, lon := area.Center()
	if math.Abs(lat-33.2275) > 1e-9 {
		t.Errorf("center latitude %v", lat)
	}
	if math.Abs(lon-(-96.8255)) > 1e-9 {
		t.Errorf("center longitude %v", lon)
	}
}
