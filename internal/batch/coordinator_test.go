package batch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"fireplane/internal/config"
	"fireplane/internal/orchestrator"
	"fireplane/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:"},
		DronePool: config.DronePoolConfig{
			Scouters: config.DroneClassConfig{
				Count: 3, Prefix: "SD",
				MaxFlightTimeMin: 30, CruiseSpeedMS: 15, CruiseAltitudeM: 50,
			},
			Firefighters: config.DroneClassConfig{
				Count: 2, Prefix: "FD",
				MaxFlightTimeMin: 20, CruiseSpeedMS: 12, CruiseAltitudeM: 40,
				PayloadCapacityKg: 10,
			},
			HomeLat: 33.2271901,
			HomeLon: -96.8252657,
		},
		MissionPlan: config.MissionPlanConfig{
			Execution:  config.ExecutionConfig{Mode: "sequential"},
			Assignment: config.AssignmentConfig{MinBatteryPercent: 50},
		},
		FireDetection: config.FireDetectionConfig{
			ThermalThresholdC: 50,
			Alerts: config.AlertsConfig{
				MinConfidence:         0.7,
				ImmediateDispatch:     true,
				SuppressionMinBattery: 30,
			},
		},
		DroneControl: config.DroneControlConfig{
			Mode: "demo",
			Demo: config.DemoControlConfig{SimulateDelays: false, BatteryDrainRate: 0.1},
		},
	}
}

func newTestCoordinator(t *testing.T, cfg *config.Config) (*Coordinator, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sd := cfg.DronePool.Scouters
	fd := cfg.DronePool.Firefighters
	if err := st.InitDronePool(log,
		store.DronePoolSpec{
			Kind: store.DroneScouter, Prefix: sd.Prefix, Count: sd.Count,
			MaxFlightTimeMin: sd.MaxFlightTimeMin, CruiseSpeedMS: sd.CruiseSpeedMS,
			CruiseAltitudeM: sd.CruiseAltitudeM,
			HomeLat:         cfg.DronePool.HomeLat, HomeLon: cfg.DronePool.HomeLon,
		},
		store.DronePoolSpec{
			Kind: store.DroneFirefighter, Prefix: fd.Prefix, Count: fd.Count,
			MaxFlightTimeMin: fd.MaxFlightTimeMin, CruiseSpeedMS: fd.CruiseSpeedMS,
			CruiseAltitudeM: fd.CruiseAltitudeM, PayloadCapacityKg: fd.PayloadCapacityKg,
			HomeLat: cfg.DronePool.HomeLat, HomeLon: cfg.DronePool.HomeLon,
		},
	); err != nil {
		t.Fatal(err)
	}

	orch := orchestrator.New(st, cfg, log)
	return New(orch, st, cfg, io.Discard, log), st
}

func namedAreas(names ...string) []Area {
	var areas []Area
	for _, name := range names {
		a := validArea()
		a.Name = name
		areas = append(areas, a)
	}
	return areas
}

func TestSequentialBatch(t *testing.T) {
	c, st := newTestCoordinator(t, testConfig())

	summary, err := c.Run(context.Background(), namedAreas("alpha", "bravo"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.ExitCode() != 0 {
		t.Errorf("exit code %d", summary.ExitCode())
	}

	status, err := st.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Tasks.Completed != 2 {
		t.Errorf("completed tasks %d, want 2", status.Tasks.Completed)
	}
	if status.Drones.Idle != status.Drones.Total {
		t.Errorf("drones not all freed: idle=%d total=%d", status.Drones.Idle, status.Drones.Total)
	}
}

func TestInvalidAreaFailsWithoutConsumingDrone(t *testing.T) {
	c, st := newTestCoordinator(t, testConfig())

	bad := validArea()
	bad.Name = ""
	areas := append(namedAreas("alpha"), bad)

	summary, err := c.Run(context.Background(), areas)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.ExitCode() != 1 {
		t.Errorf("exit code %d with a failed mission", summary.ExitCode())
	}

	// The invalid entry must not have created a task at all.
	status, err := st.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Tasks.Total != 1 {
		t.Errorf("tasks created %d, want 1", status.Tasks.Total)
	}
}

func TestSequentialStopOnError(t *testing.T) {
	cfg := testConfig()
	cfg.MissionPlan.Execution.StopOnError = true
	c, _ := newTestCoordinator(t, cfg)

	bad := validArea()
	bad.Priority = "urgent"
	areas := []Area{bad, validArea()}
	areas[1].Name = "never-flown"

	summary, err := c.Run(context.Background(), areas)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != 0 {
		t.Errorf("summary %+v", summary)
	}
	if summary.Total != 2 {
		t.Fatalf("skipped missions must still be reported: %+v", summary)
	}
	for _, res := range summary.Results {
		if res.Area == "never-flown" && res.Err == nil {
			t.Error("mission after stop-on-error was flown")
		}
	}
}

func TestParallelBatch(t *testing.T) {
	cfg := testConfig()
	cfg.MissionPlan.Execution.Mode = "parallel"
	cfg.MissionPlan.Execution.ParallelMaxWorkers = 2
	c, st := newTestCoordinator(t, cfg)

	summary, err := c.Run(context.Background(), namedAreas("a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded != 3 {
		t.Fatalf("summary %+v", summary)
	}

	status, err := st.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Tasks.Completed != 3 {
		t.Errorf("completed %d, want 3", status.Tasks.Completed)
	}
	if status.Drones.Idle != status.Drones.Total {
		t.Errorf("drones not all freed after parallel run")
	}
}

func TestBatchExhaustsFleet(t *testing.T) {
	cfg := testConfig()
	cfg.MissionPlan.Execution.Mode = "parallel"
	// More concurrent missions than scouters: the surplus must fail with a
	// useful error, not hang.
	cfg.MissionPlan.Execution.ParallelMaxWorkers = 5
	c, _ := newTestCoordinator(t, cfg)

	// Hold drones by making flights effectively instant but assignments
	// racing: with 3 scouters and 5 simultaneous missions some may still
	// succeed in sequence as drones free up, so only the aggregate is
	// checked.
	summary, err := c.Run(context.Background(), namedAreas("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 5 {
		t.Fatalf("summary %+v", summary)
	}
	for _, res := range summary.Results {
		if res.Err != nil && !strings.Contains(res.Err.Error(), "no") && !strings.Contains(res.Err.Error(), "assign") {
			t.Errorf("unexpected failure kind for %s: %v", res.Area, res.Err)
		}
	}
}

func TestSimulateFires(t *testing.T) {
	c, st := newTestCoordinator(t, testConfig())
	c.SimulateFires = true

	summary, err := c.Run(context.Background(), namedAreas("alpha"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 0 {
		t.Fatalf("summary %+v", summary)
	}
	if summary.Results[0].FiresDetected != 1 {
		t.Errorf("no simulated fire recorded")
	}
	if len(summary.Results[0].SuppressionTasks) != 1 {
		t.Fatalf("suppression tasks %v", summary.Results[0].SuppressionTasks)
	}

	status, err := st.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Detections.Total != 1 || status.Detections.Suppressed != 1 {
		t.Errorf("detections %+v", status.Detections)
	}
	// One scout plus one suppression task, both completed.
	if status.Tasks.Completed != 2 {
		t.Errorf("completed tasks %d, want 2", status.Tasks.Completed)
	}
}

func TestSummaryOutput(t *testing.T) {
	cfg := testConfig()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := st.InitDronePool(log, store.DronePoolSpec{
		Kind: store.DroneScouter, Prefix: "SD", Count: 1,
		MaxFlightTimeMin: 30, CruiseSpeedMS: 15, CruiseAltitudeM: 50,
	}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	c := New(orchestrator.New(st, cfg, log), st, cfg, &out, log)

	if _, err := c.Run(context.Background(), namedAreas("alpha")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "1/1 missions succeeded") {
		t.Errorf("summary line missing from output:\n%s", out.String())
	}
}
