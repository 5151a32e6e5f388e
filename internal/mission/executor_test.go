package mission

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"fireplane/internal/config"
	"fireplane/internal/controller"
	"fireplane/pkg/api"
)

func testMissionConfig() api.MissionConfig {
	return api.MissionConfig{
		CornerALat: 33.2270, CornerALon: -96.8260,
		CornerBLat: 33.2270, CornerBLon: -96.8250,
		CornerCLat: 33.2280, CornerCLon: -96.8250,
		CornerDLat: 33.2280, CornerDLon: -96.8260,
		CruiseAltitude: 50,
		CruiseSpeed:    15,
	}
}

func testExecutor() (*Executor, *controller.Demo) {
	ctrl := controller.NewDemo("SD-001", config.DemoControlConfig{BatteryDrainRate: 0.05})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor("SD-001", ctrl, log), ctrl
}

func TestSerpentinePath(t *testing.T) {
	cfg := testMissionConfig()
	waypoints := SerpentinePath(cfg, 0.0002)

	if len(waypoints) < 4 {
		t.Fatalf("too few waypoints: %d", len(waypoints))
	}
	if len(waypoints)%2 != 0 {
		t.Fatalf("legs must contribute waypoint pairs, got %d", len(waypoints))
	}

	// First leg runs A to B at A's latitude.
	if waypoints[0].Lat != cfg.CornerALat || waypoints[0].Lon != cfg.CornerALon {
		t.Errorf("sweep must start at corner A, got %+v", waypoints[0])
	}
	if waypoints[1].Lon != cfg.CornerBLon {
		t.Errorf("first leg must end at corner B longitude, got %+v", waypoints[1])
	}

	// Legs alternate direction: consecutive pairs share a longitude at the
	// turn, so the drone never cuts diagonally across the area.
	for i := 2; i < len(waypoints); i += 2 {
		if waypoints[i].Lon != waypoints[i-1].Lon {
			t.Errorf("leg %d does not turn in place: %v -> %v", i/2, waypoints[i-1], waypoints[i])
		}
	}

	// The last leg reaches the far edge of the rectangle.
	last := waypoints[len(waypoints)-1]
	if last.Lat != cfg.CornerDLat {
		t.Errorf("sweep ends at latitude %v, want %v", last.Lat, cfg.CornerDLat)
	}

	for _, wp := range waypoints {
		if wp.Alt != cfg.CruiseAltitude {
			t.Fatalf("waypoint altitude %v, want cruise %v", wp.Alt, cfg.CruiseAltitude)
		}
	}
}

func TestSerpentinePathDensity(t *testing.T) {
	cfg := testMissionConfig()
	coarse := SerpentinePath(cfg, 0.0005)
	fine := SerpentinePath(cfg, 0.0001)
	if len(fine) <= len(coarse) {
		t.Errorf("tighter spacing must add legs: fine=%d coarse=%d", len(fine), len(coarse))
	}
}

func TestExecuteScout(t *testing.T) {
	exec, ctrl := testExecutor()

	result, err := exec.ExecuteScout(context.Background(), "TASK-20260830-0001", testMissionConfig())
	if err != nil {
		t.Fatalf("scout: %v", err)
	}
	if result.DataPath != "data/SD-001/TASK-20260830-0001" {
		t.Errorf("data path %q", result.DataPath)
	}
	if result.HotspotsDetected != len(result.Hotspots) {
		t.Errorf("count %d disagrees with %d alerts", result.HotspotsDetected, len(result.Hotspots))
	}
	if ctrl.Armed() {
		t.Error("controller still armed after mission")
	}
	if ctrl.Battery() >= 100 {
		t.Error("flight drew no battery")
	}
}

func TestExecuteScoutCancellation(t *testing.T) {
	exec, _ := testExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.ExecuteScout(ctx, "TASK-20260830-0001", testMissionConfig()); err == nil {
		t.Fatal("cancelled scout reported success")
	}
}

func TestExecuteSuppression(t *testing.T) {
	exec, ctrl := testExecutor()

	dataPath, err := exec.ExecuteSuppression(context.Background(), "TASK-20260830-0002", testMissionConfig())
	if err != nil {
		t.Fatalf("suppression: %v", err)
	}
	if dataPath != "data/SD-001/TASK-20260830-0002" {
		t.Errorf("data path %q", dataPath)
	}

	// The run ends landed over the target center.
	lat, lon, alt := ctrl.Position()
	if alt != 0 {
		t.Errorf("altitude %v after landing", alt)
	}
	wantLat := (33.2270 + 33.2280) / 2
	wantLon := (-96.8260 + -96.8250) / 2
	if lat != wantLat || lon != wantLon {
		t.Errorf("final position (%v, %v), want (%v, %v)", lat, lon, wantLat, wantLon)
	}
}
