package agent

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fireplane/internal/controller"
	"fireplane/pkg/api"
)

// stubController is a minimal flight controller whose Goto can be gated, so
// tests can hold a mission in flight deterministically.
type stubController struct {
	mu        sync.Mutex
	connected bool
	armed     bool
	mode      controller.FlightMode

	// gate, when non-nil, blocks every Goto until closed.
	gate chan struct{}

	disarmed bool
	rtlSent  bool
}

func (s *stubController) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *stubController) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *stubController) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	return nil
}

func (s *stubController) Disarm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.disarmed = true
	return nil
}

func (s *stubController) Takeoff(ctx context.Context, altitudeM float64) error { return nil }

func (s *stubController) Goto(ctx context.Context, lat, lon, alt float64) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gate:
		}
	}
	return ctx.Err()
}

func (s *stubController) Land(ctx context.Context) error { return ctx.Err() }

func (s *stubController) ReturnToLaunch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rtlSent = true
	return nil
}

func (s *stubController) EmergencyStop() error { return nil }

func (s *stubController) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubController) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *stubController) Battery() float64                      { return 87.5 }
func (s *stubController) Position() (float64, float64, float64) { return 33.2275, -96.8255, 50 }
func (s *stubController) Speed() float64                        { return 5 }
func (s *stubController) Heading() float64                      { return 180 }
func (s *stubController) Mode() controller.FlightMode           { return controller.ModeGuided }

func testMissionConfig() api.MissionConfig {
	return api.MissionConfig{
		CornerALat: 33.2270, CornerALon: -96.8260,
		CornerBLat: 33.2270, CornerBLon: -96.8250,
		CornerCLat: 33.2272, CornerCLon: -96.8250,
		CornerDLat: 33.2272, CornerDLon: -96.8260,
		CruiseAltitude: 50,
		CruiseSpeed:    15,
	}
}

func newTestAgent(ctrl controller.Controller) *Agent {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{DroneID: "SD-001", Mode: "demo"}, ctrl, nil, nil, log)
}

func waitDone(t *testing.T, a *Agent) {
	t.Helper()
	done := a.MissionDone()
	if done == nil {
		t.Fatal("no mission running")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("mission goroutine did not exit")
	}
}

func TestAssignAndReassign(t *testing.T) {
	a := newTestAgent(&stubController{})

	if err := a.Assign("TASK-20260830-0001", testMissionConfig()); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	// The same task again is an idempotent accept.
	if err := a.Assign("TASK-20260830-0001", testMissionConfig()); err != nil {
		t.Errorf("re-assign of same task rejected: %v", err)
	}

	// A different task while one is pending is not.
	if err := a.Assign("TASK-20260830-0002", testMissionConfig()); err == nil {
		t.Error("assign of second task accepted")
	}
}

func TestStartIsNonBlocking(t *testing.T) {
	ctrl := &stubController{gate: make(chan struct{})}
	a := newTestAgent(ctrl)

	if err := a.Assign("TASK-20260830-0001", testMissionConfig()); err != nil {
		t.Fatal(err)
	}

	started := time.Now()
	taskID, err := a.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("start blocked for %v", elapsed)
	}
	if taskID != "TASK-20260830-0001" {
		t.Errorf("started task %s", taskID)
	}

	// The gate holds the mission in flight, so this observation is stable.
	if got := a.State(); got != StateExecuting {
		t.Errorf("state %s immediately after start, want %s", got, StateExecuting)
	}

	if _, err := a.Start(); err == nil {
		t.Error("second start accepted while executing")
	}

	close(ctrl.gate)
	waitDone(t, a)

	if got := a.State(); got != StateIdle {
		t.Errorf("state %s after completion, want %s", got, StateIdle)
	}
}

func TestStartWithoutAssignment(t *testing.T) {
	a := newTestAgent(&stubController{})
	if _, err := a.Start(); err == nil {
		t.Error("start without an assigned mission accepted")
	}
}

func TestAbortCancelsMission(t *testing.T) {
	ctrl := &stubController{gate: make(chan struct{})}
	a := newTestAgent(ctrl)

	if err := a.Assign("TASK-20260830-0001", testMissionConfig()); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Start(); err != nil {
		t.Fatal(err)
	}

	if err := a.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	waitDone(t, a)

	// The latched RTL state survives the mission goroutine's exit.
	if got := a.State(); got != StateRTL {
		t.Errorf("state %s after abort, want %s", got, StateRTL)
	}
}

func TestKillIsLatched(t *testing.T) {
	ctrl := &stubController{gate: make(chan struct{})}
	a := newTestAgent(ctrl)

	if err := a.Assign("TASK-20260830-0001", testMissionConfig()); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Start(); err != nil {
		t.Fatal(err)
	}

	if err := a.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitDone(t, a)

	ctrl.mu.Lock()
	disarmed := ctrl.disarmed
	ctrl.mu.Unlock()
	if !disarmed {
		t.Error("kill did not disarm the controller")
	}

	if got := a.State(); got != StateKilled {
		t.Fatalf("state %s after kill, want %s", got, StateKilled)
	}

	// No path out of KILLED short of a restart.
	if err := a.RTL("test"); err != nil {
		t.Fatal(err)
	}
	if got := a.State(); got != StateKilled {
		t.Errorf("rtl downgraded KILLED to %s", got)
	}
	if err := a.Assign("TASK-20260830-0009", testMissionConfig()); err == nil {
		t.Error("assign accepted after kill")
	}
	if _, err := a.Start(); err == nil {
		t.Error("start accepted after kill")
	}
}

func TestStatusSnapshot(t *testing.T) {
	ctrl := &stubController{}
	if err := ctrl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := newTestAgent(ctrl)

	status := a.Status()
	if status.DroneID != "SD-001" {
		t.Errorf("drone ID %s", status.DroneID)
	}
	if status.State != string(StateIdle) {
		t.Errorf("state %s", status.State)
	}
	if !status.Connected || status.Battery != 87.5 {
		t.Errorf("controller snapshot not reflected: connected=%t battery=%v",
			status.Connected, status.Battery)
	}
}
