// Package orchestrator owns the mission lifecycle: task creation, drone
// assignment, fire-detection registration, suppression dispatch, and
// stale-work reclamation. Every operation is a single store transaction,
// so concurrent callers need no locking of their own.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fireplane/internal/config"
	"fireplane/internal/logger"
	"fireplane/internal/store"
)

// ErrNoDroneAvailable reports that no drone of the required kind satisfies
// the battery floor. Recoverable: the caller may retry later.
var ErrNoDroneAvailable = errors.New("no available drone")

// ErrInvalidTransition reports a lifecycle call against a task in the wrong
// state.
var ErrInvalidTransition = errors.New("invalid task state transition")

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// FlightArea is the rectangular scan area, corners A-D.
type FlightArea struct {
	CornerA Coordinate `yaml:"corner_a" json:"corner_a"`
	CornerB Coordinate `yaml:"corner_b" json:"corner_b"`
	CornerC Coordinate `yaml:"corner_c" json:"corner_c"`
	CornerD Coordinate `yaml:"corner_d" json:"corner_d"`
}

// Orchestrator coordinates the drone fleet through the entity store.
type Orchestrator struct {
	store *store.Store
	cfg   *config.Config
	log   *slog.Logger
	now   func() time.Time
}

// New creates an orchestrator backed by st.
func New(st *store.Store, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{store: st, cfg: cfg, log: log, now: time.Now}
}

// CreateScoutTask allocates the next task ID for the current UTC day and
// persists a new scout task in Created state. The sequence is derived from
// the store's per-day maximum inside the transaction, so restarts cannot
// reissue an ID.
func (o *Orchestrator) CreateScoutTask(ctx context.Context, area FlightArea, priority string) (*store.Task, error) {
	if priority == "" {
		priority = "medium"
	}
	sd := o.cfg.DronePool.Scouters

	var task *store.Task
	err := o.store.Transaction(func(tx *store.Store) error {
		taskID, err := o.nextTaskID(tx)
		if err != nil {
			return err
		}
		task = &store.Task{
			TaskID:          taskID,
			Kind:            store.TaskScout,
			State:           store.TaskCreated,
			Priority:        priority,
			CornerALat:      area.CornerA.Latitude,
			CornerALon:      area.CornerA.Longitude,
			CornerBLat:      area.CornerB.Latitude,
			CornerBLon:      area.CornerB.Longitude,
			CornerCLat:      area.CornerC.Latitude,
			CornerCLon:      area.CornerC.Longitude,
			CornerDLat:      area.CornerD.Latitude,
			CornerDLon:      area.CornerD.Longitude,
			CruiseAltitudeM: sd.CruiseAltitudeM,
			CruiseSpeedMS:   sd.CruiseSpeedMS,
			Pattern:         "serpentine",
		}
		return tx.CreateTask(task)
	})
	if err != nil {
		return nil, fmt.Errorf("create scout task: %w", err)
	}

	logger.FromContext(ctx, o.log).Info("created task", "task_id", task.TaskID)
	return task, nil
}

// StartTaskExecution moves a task Assigned -> Executing and its drone
// Assigned -> Flying. Calling it on a task not in Assigned state returns
// ErrInvalidTransition, never a silent transition.
func (o *Orchestrator) StartTaskExecution(ctx context.Context, taskID string) error {
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if err != nil {
			return err
		}
		if task.State != store.TaskAssigned {
			return fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidTransition, taskID, task.State, store.TaskAssigned)
		}

		now := o.now().UTC()
		task.State = store.TaskExecuting
		task.StartedAt = &now
		if err := tx.SaveTask(task); err != nil {
			return err
		}

		if task.DroneID != nil {
			drone, err := tx.DroneByKey(*task.DroneID)
			if err != nil {
				return err
			}
			drone.State = store.DroneFlying
			if err := tx.SaveDrone(drone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("start task %s: %w", taskID, err)
	}

	logger.FromContext(ctx, o.log).Info("task execution started", "task_id", taskID)
	return nil
}

// CompleteTask marks a task Completed with its results and frees the drone,
// debiting battery by flight time relative to the rated maximum. Task and
// drone updates land in one transaction. Only Assigned or Executing tasks can
// complete; a repeat delivery of the same completion returns
// ErrInvalidTransition instead of debiting the drone twice.
func (o *Orchestrator) CompleteTask(ctx context.Context, taskID string, hotspotsDetected int, dataPath string) error {
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if err != nil {
			return err
		}
		if err := completable(task); err != nil {
			return err
		}

		now := o.now().UTC()
		task.State = store.TaskCompleted
		task.CompletedAt = &now
		task.HotspotsDetected = hotspotsDetected
		task.DataPath = dataPath
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		return o.freeDrone(tx, task)
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	logger.FromContext(ctx, o.log).Info("task completed",
		"task_id", taskID, "hotspots", hotspotsDetected)
	return nil
}

// CompleteSuppressionTask marks a suppression task Completed and flips every
// detection dispatched to the task's drone to Suppressed.
func (o *Orchestrator) CompleteSuppressionTask(ctx context.Context, taskID string, dataPath string) error {
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if err != nil {
			return err
		}
		if err := completable(task); err != nil {
			return err
		}

		now := o.now().UTC()
		task.State = store.TaskCompleted
		task.CompletedAt = &now
		task.FiresSuppressed = 1
		task.DataPath = dataPath
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		if err := o.freeDrone(tx, task); err != nil {
			return err
		}

		if task.DroneID == nil {
			return nil
		}
		detections, err := tx.DispatchedDetectionsFor(*task.DroneID)
		if err != nil {
			return err
		}
		for i := range detections {
			detections[i].Status = store.DetectionSuppressed
			detections[i].SuppressedAt = &now
			if err := tx.SaveDetection(&detections[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete suppression task %s: %w", taskID, err)
	}

	logger.FromContext(ctx, o.log).Info("suppression task completed", "task_id", taskID)
	return nil
}

// FailTask marks a task Failed and frees its drone. The failure reason is
// logged, not persisted; the task row keeps its timestamps for inspection.
func (o *Orchestrator) FailTask(ctx context.Context, taskID string, reason string) error {
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if err != nil {
			return err
		}
		if err := completable(task); err != nil {
			return err
		}

		now := o.now().UTC()
		task.State = store.TaskFailed
		task.CompletedAt = &now
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		return o.freeDrone(tx, task)
	})
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}

	logger.FromContext(ctx, o.log).Warn("task failed", "task_id", taskID, "reason", reason)
	return nil
}

// completable guards the terminal transitions. Tasks advance strictly
// forward; completion or failure of a task already in a terminal state is a
// duplicate delivery and must not free its drone again.
func completable(task *store.Task) error {
	switch task.State {
	case store.TaskAssigned, store.TaskExecuting:
		return nil
	default:
		return fmt.Errorf("%w: task %s is %s, cannot finish", ErrInvalidTransition, task.TaskID, task.State)
	}
}

// freeDrone returns a task's drone to Idle, bumping its flight counters and
// debiting battery. If the task never recorded a start time no battery is
// debited.
func (o *Orchestrator) freeDrone(tx *store.Store, task *store.Task) error {
	if task.DroneID == nil {
		return nil
	}
	drone, err := tx.DroneByKey(*task.DroneID)
	if err != nil {
		return err
	}

	drone.State = store.DroneIdle
	drone.TotalFlights++

	if task.StartedAt != nil && task.CompletedAt != nil {
		flightMin := task.CompletedAt.Sub(*task.StartedAt).Minutes()
		drone.TotalFlightTimeMin += flightMin
		if drone.MaxFlightTimeMin > 0 {
			used := flightMin / drone.MaxFlightTimeMin * 100
			drone.BatteryPercent -= used
			if drone.BatteryPercent < 0 {
				drone.BatteryPercent = 0
			}
		}
	}
	return tx.SaveDrone(drone)
}

// CancelTask moves any non-terminal task to Cancelled and frees its drone.
// Returns false when the task does not exist.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID string) (bool, error) {
	found := false
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		now := o.now().UTC()
		task.State = store.TaskCancelled
		task.CompletedAt = &now
		if err := tx.SaveTask(task); err != nil {
			return err
		}

		// The cancelled task keeps its drone reference for audit; only the
		// drone's state is reset.
		if task.DroneID != nil {
			drone, err := tx.DroneByKey(*task.DroneID)
			if err != nil {
				return err
			}
			drone.State = store.DroneIdle
			return tx.SaveDrone(drone)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	if found {
		logger.FromContext(ctx, o.log).Info("task cancelled", "task_id", taskID)
	}
	return found, nil
}

// ReturnDroneToStation cancels any active task referencing the drone and
// forces the drone to Idle. An administrative override; it does not signal
// the agent process, which must be sent an abort or RTL separately.
func (o *Orchestrator) ReturnDroneToStation(ctx context.Context, droneID string) (bool, error) {
	found := false
	err := o.store.Transaction(func(tx *store.Store) error {
		drone, err := tx.DroneByID(droneID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		task, err := tx.ActiveTaskForDrone(drone.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if task != nil {
			now := o.now().UTC()
			task.State = store.TaskCancelled
			task.CompletedAt = &now
			if err := tx.SaveTask(task); err != nil {
				return err
			}
		}

		drone.State = store.DroneIdle
		return tx.SaveDrone(drone)
	})
	if err != nil {
		return false, fmt.Errorf("return drone %s to station: %w", droneID, err)
	}
	if found {
		logger.FromContext(ctx, o.log).Info("drone returned to station", "drone_id", droneID)
	}
	return found, nil
}

// ResetStaleTasks cancels executing tasks older than maxAge (or missing a
// start timestamp) and frees their drones, returning the reclaimed count.
// This is the sole recovery path for drones stuck behind a crashed mission.
func (o *Orchestrator) ResetStaleTasks(ctx context.Context, maxAge time.Duration) (int, error) {
	count := 0
	err := o.store.Transaction(func(tx *store.Store) error {
		cutoff := o.now().UTC().Add(-maxAge)
		stale, err := tx.StaleExecutingTasks(cutoff)
		if err != nil {
			return err
		}

		now := o.now().UTC()
		for i := range stale {
			task := &stale[i]
			task.State = store.TaskCancelled
			task.CompletedAt = &now
			if err := tx.SaveTask(task); err != nil {
				return err
			}
			if task.DroneID != nil {
				drone, err := tx.DroneByKey(*task.DroneID)
				if err != nil {
					return err
				}
				drone.State = store.DroneIdle
				if err := tx.SaveDrone(drone); err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset stale tasks: %w", err)
	}
	if count > 0 {
		logger.FromContext(ctx, o.log).Warn("reclaimed stale tasks", "count", count)
	}
	return count, nil
}

// SystemStatus returns aggregate entity counts. Read-only.
func (o *Orchestrator) SystemStatus(ctx context.Context) (*store.SystemStatus, error) {
	return o.store.Status()
}

// nextTaskID allocates the next task identifier for the current UTC day.
// Must run inside a transaction.
func (o *Orchestrator) nextTaskID(tx *store.Store) (string, error) {
	day := o.now().UTC().Format("20060102")
	seq, err := tx.MaxTaskSeq(day)
	if err != nil {
		return "", fmt.Errorf("recover task sequence: %w", err)
	}
	return fmt.Sprintf("TASK-%s-%04d", day, seq+1), nil
}

// nextDetectionID allocates the next detection identifier for the current
// UTC day. Must run inside a transaction.
func (o *Orchestrator) nextDetectionID(tx *store.Store) (string, error) {
	day := o.now().UTC().Format("20060102")
	seq, err := tx.MaxDetectionSeq(day)
	if err != nil {
		return "", fmt.Errorf("recover detection sequence: %w", err)
	}
	return fmt.Sprintf("FIRE-%s-%04d", day, seq+1), nil
}
