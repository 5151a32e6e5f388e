// Package agent implements the drone-side control-plane server. One agent
// process runs per drone unit; it accepts commands from the ground station
// and executes missions on a supervised goroutine so the command surface
// stays responsive in flight.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fireplane/internal/controller"
	"fireplane/internal/mission"
	"fireplane/internal/store"
	"fireplane/pkg/api"
)

// State is the agent-side mission state. RTL, LANDING, and KILLED are
// latched: once entered there is no return to IDLE without a process
// restart (KILLED additionally means motors disarmed).
type State string

const (
	StateIdle      State = "IDLE"
	StateExecuting State = "EXECUTING"
	StateRTL       State = "RTL"
	StateLanding   State = "LANDING"
	StateKilled    State = "KILLED"
)

// Recorder is the slice of the mission orchestrator the agent drives as a
// mission progresses. Nil disables store callbacks (bench agents).
type Recorder interface {
	StartTaskExecution(ctx context.Context, taskID string) error
	CompleteTask(ctx context.Context, taskID string, hotspotsDetected int, dataPath string) error
	CompleteSuppressionTask(ctx context.Context, taskID string, dataPath string) error
}

// Config holds agent settings.
type Config struct {
	DroneID           string
	Mode              string // controller mode, reported in status
	TelemetryInterval time.Duration
}

type pendingTask struct {
	TaskID     string
	Config     api.MissionConfig
	AssignedAt time.Time
}

// Agent is the per-drone command server state.
type Agent struct {
	cfg      Config
	ctrl     controller.Controller
	executor *mission.Executor
	recorder Recorder
	st       *store.Store // telemetry sink; may be nil
	pub      *Publisher   // ground event link; may be nil
	log      *slog.Logger

	commandsTotal metric.Int64Counter
	missionsTotal metric.Int64Counter

	mu            sync.Mutex
	state         State
	task          *pendingTask
	missionCancel context.CancelFunc
	missionDone   chan struct{}
}

// New creates an agent for the given controller. recorder and st may be nil.
func New(cfg Config, ctrl controller.Controller, recorder Recorder, st *store.Store, log *slog.Logger) *Agent {
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = time.Second
	}

	meter := otel.Meter("fireplane-agent")
	commands, _ := meter.Int64Counter("fireplane.agent.commands",
		metric.WithDescription("Control-plane commands received"))
	missions, _ := meter.Int64Counter("fireplane.agent.missions",
		metric.WithDescription("Missions executed, by outcome"))

	return &Agent{
		cfg:           cfg,
		ctrl:          ctrl,
		executor:      mission.NewExecutor(cfg.DroneID, ctrl, log),
		recorder:      recorder,
		st:            st,
		log:           log.With("drone_id", cfg.DroneID),
		commandsTotal: commands,
		missionsTotal: missions,
		state:         StateIdle,
	}
}

// SetPublisher attaches the ground event link. Call before Start.
func (a *Agent) SetPublisher(p *Publisher) {
	a.pub = p
}

// State returns the current agent state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Assign stores the pending task. Re-sending the same task ID is accepted
// idempotently; a different task while one is unfinished is rejected.
func (a *Agent) Assign(taskID string, cfg api.MissionConfig) error {
	a.count("assign")
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateKilled {
		return errors.New("motors disarmed (killed); power-cycle required")
	}
	if a.task != nil && a.task.TaskID != taskID {
		return fmt.Errorf("task %s already assigned", a.task.TaskID)
	}
	if a.task != nil && a.task.TaskID == taskID {
		a.log.Info("mission re-assigned", "task_id", taskID)
		return nil
	}

	a.task = &pendingTask{TaskID: taskID, Config: cfg, AssignedAt: time.Now().UTC()}
	a.log.Info("mission assigned", "task_id", taskID)
	return nil
}

// Start spawns the stored mission on a background goroutine and transitions
// to Executing before returning; the call never waits for the flight.
func (a *Agent) Start() (string, error) {
	a.count("start")
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.task == nil {
		return "", errors.New("no mission assigned")
	}
	switch a.state {
	case StateExecuting:
		return "", errors.New("mission already executing")
	case StateKilled:
		return "", errors.New("motors disarmed (killed); power-cycle required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.state = StateExecuting
	a.missionCancel = cancel
	a.missionDone = make(chan struct{})

	task := *a.task
	go a.runMission(ctx, task, a.missionDone)

	a.log.Info("mission starting", "task_id", task.TaskID)
	return task.TaskID, nil
}

// runMission executes the flight and, on normal completion, returns the
// agent to Idle. Latched emergency states set by command handlers are never
// overwritten here.
func (a *Agent) runMission(ctx context.Context, task pendingTask, done chan struct{}) {
	defer close(done)

	if a.recorder != nil {
		if err := a.recorder.StartTaskExecution(ctx, task.TaskID); err != nil {
			a.log.Error("record mission start", "task_id", task.TaskID, "error", err)
		}
	}

	var execErr error
	if task.Config.Pattern == "suppression" {
		var dataPath string
		dataPath, execErr = a.executor.ExecuteSuppression(ctx, task.TaskID, task.Config)
		if execErr == nil {
			if a.recorder != nil {
				if err := a.recorder.CompleteSuppressionTask(ctx, task.TaskID, dataPath); err != nil {
					a.log.Error("record suppression completion", "task_id", task.TaskID, "error", err)
				}
			}
			a.pub.publish(context.Background(), api.MessageMissionComplete, api.MissionResult{
				TaskID:   task.TaskID,
				DataPath: dataPath,
				Success:  true,
			})
		}
	} else {
		var res *mission.ScoutResult
		res, execErr = a.executor.ExecuteScout(ctx, task.TaskID, task.Config)
		if execErr == nil {
			if a.recorder != nil {
				if err := a.recorder.CompleteTask(context.Background(), task.TaskID, res.HotspotsDetected, res.DataPath); err != nil {
					a.log.Error("record mission completion", "task_id", task.TaskID, "error", err)
				}
			}
			for _, alert := range res.Hotspots {
				a.pub.publish(context.Background(), api.MessageHotspotAlert, alert)
			}
			a.pub.publish(context.Background(), api.MessageMissionComplete, api.MissionResult{
				TaskID:           task.TaskID,
				HotspotsDetected: res.HotspotsDetected,
				DataPath:         res.DataPath,
				DurationSec:      res.Duration.Seconds(),
				Success:          true,
			})
		}
	}
	if execErr != nil {
		a.pub.publish(context.Background(), api.MessageMissionFailed, api.MissionResult{TaskID: task.TaskID})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if execErr != nil {
		a.missionsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "failed")))
		a.log.Error("mission failed", "task_id", task.TaskID, "error", execErr)
		// A cancelled mission was stopped by an emergency command; its
		// latched state stands. Any other failure frees the agent.
		if a.state == StateExecuting {
			a.state = StateIdle
			a.task = nil
		}
		return
	}

	a.missionsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "completed")))
	a.log.Info("mission complete", "task_id", task.TaskID)
	if a.state == StateExecuting {
		a.state = StateIdle
	}
	a.task = nil
}

// Abort latches RTL, cancels any in-flight mission, and emergency-stops the
// controller. Accepted in every state.
func (a *Agent) Abort() error {
	a.count("abort")
	a.latch(StateRTL)
	if a.ctrl.Connected() {
		return a.ctrl.EmergencyStop()
	}
	return nil
}

// RTL latches RTL and commands a controlled return to launch.
func (a *Agent) RTL(reason string) error {
	a.count("rtl")
	a.latch(StateRTL)
	a.log.Info("rtl commanded", "reason", reason)
	if a.ctrl.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.ctrl.ReturnToLaunch(ctx)
	}
	return nil
}

// Land latches LANDING and commands a landing at the current position.
func (a *Agent) Land() error {
	a.count("land")
	a.latch(StateLanding)
	if a.ctrl.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.ctrl.Land(ctx)
	}
	return nil
}

// Kill disarms the motors immediately. Irreversible: the agent stays KILLED
// until the process is restarted. The drone will fall if airborne.
func (a *Agent) Kill() error {
	a.count("kill")
	a.latch(StateKilled)
	a.log.Warn("kill switch activated, motors stopping")
	if a.ctrl.Connected() {
		return a.ctrl.Disarm()
	}
	return nil
}

// latch sets an emergency state and cancels the mission goroutine if one is
// running. KILLED is terminal and never downgraded to RTL or LANDING.
func (a *Agent) latch(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateKilled {
		return
	}
	a.state = s
	if a.missionCancel != nil {
		a.missionCancel()
		a.missionCancel = nil
	}
}

// Status returns the current snapshot. When the controller is disconnected
// a default snapshot is reported.
func (a *Agent) Status() api.StatusResponse {
	a.count("status")
	a.mu.Lock()
	state := a.state
	currentTask := ""
	if a.task != nil {
		currentTask = a.task.TaskID
	}
	a.mu.Unlock()

	resp := api.StatusResponse{
		DroneID:     a.cfg.DroneID,
		State:       string(state),
		Timestamp:   time.Now().UTC(),
		Mode:        a.cfg.Mode,
		CurrentTask: currentTask,
	}

	if a.ctrl.Connected() {
		lat, lon, alt := a.ctrl.Position()
		resp.Connected = true
		resp.Armed = a.ctrl.Armed()
		resp.Battery = a.ctrl.Battery()
		resp.Position = api.Position{Lat: lat, Lon: lon, Alt: alt}
		resp.Speed = a.ctrl.Speed()
		resp.Heading = a.ctrl.Heading()
		resp.FlightMode = string(a.ctrl.Mode())
	} else {
		resp.Battery = 100
		resp.FlightMode = string(controller.ModeIdle)
	}
	return resp
}

// Heartbeat answers a liveness probe.
func (a *Agent) Heartbeat() api.HeartbeatResponse {
	return api.HeartbeatResponse{
		Success:   true,
		DroneID:   a.cfg.DroneID,
		Timestamp: time.Now().UTC(),
		State:     string(a.State()),
	}
}

// RunTelemetry samples controller telemetry into the local store while a
// mission is executing. Blocks until ctx is cancelled.
func (a *Agent) RunTelemetry(ctx context.Context) {
	if a.st == nil {
		return
	}
	ticker := time.NewTicker(a.cfg.TelemetryInterval)
	defer ticker.Stop()

	var droneKey *uint
	if d, err := a.st.DroneByID(a.cfg.DroneID); err == nil {
		droneKey = &d.ID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.State() != StateExecuting || !a.ctrl.Connected() {
				continue
			}
			var taskKey *uint
			if droneKey != nil {
				if task, err := a.st.ActiveTaskForDrone(*droneKey); err == nil {
					taskKey = &task.ID
				}
			}
			lat, lon, alt := a.ctrl.Position()
			sample := store.Telemetry{
				DroneID:        droneKey,
				TaskID:         taskKey,
				Timestamp:      time.Now().UTC(),
				Latitude:       lat,
				Longitude:      lon,
				Altitude:       alt,
				Heading:        a.ctrl.Heading(),
				BatteryPercent: a.ctrl.Battery(),
				SpeedMS:        a.ctrl.Speed(),
			}
			if err := a.st.RecordTelemetry(&sample); err != nil {
				a.log.Error("record telemetry", "error", err)
			}
		}
	}
}

// MissionDone returns a channel closed when the current mission goroutine
// exits, or nil when none is running. Used by tests and shutdown.
func (a *Agent) MissionDone() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.missionDone
}

func (a *Agent) count(command string) {
	a.commandsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
