package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// --- Drones ---

// DroneByKey fetches a drone by its internal key.
func (s *Store) DroneByKey(id uint) (*Drone, error) {
	var d Drone
	if err := s.db.First(&d, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// DroneByID fetches a drone by its public identifier (e.g. "SD-001").
func (s *Store) DroneByID(droneID string) (*Drone, error) {
	var d Drone
	if err := s.db.Where("drone_id = ?", droneID).First(&d).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// IdleDrones returns idle drones of the given kind with battery at or above
// minBattery, ordered by drone ID so round-robin walks a stable sequence.
func (s *Store) IdleDrones(kind DroneKind, minBattery float64) ([]Drone, error) {
	var drones []Drone
	err := s.db.
		Where("kind = ? AND state = ? AND battery_percent >= ?", kind, DroneIdle, minBattery).
		Order("drone_id").
		Find(&drones).Error
	if err != nil {
		return nil, err
	}
	return drones, nil
}

// SaveDrone persists all fields of an already-loaded drone.
func (s *Store) SaveDrone(d *Drone) error {
	return s.db.Save(d).Error
}

// --- Tasks ---

// CreateTask inserts a new task.
func (s *Store) CreateTask(t *Task) error {
	return s.db.Create(t).Error
}

// TaskByID fetches a task by its public identifier.
func (s *Store) TaskByID(taskID string) (*Task, error) {
	var t Task
	if err := s.db.Where("task_id = ?", taskID).First(&t).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

// SaveTask persists all fields of an already-loaded task.
func (s *Store) SaveTask(t *Task) error {
	return s.db.Save(t).Error
}

// ActiveTaskForDrone returns the Assigned or Executing task referencing the
// drone, or ErrNotFound.
func (s *Store) ActiveTaskForDrone(droneKey uint) (*Task, error) {
	var t Task
	err := s.db.
		Where("drone_id = ? AND state IN ?", droneKey, []TaskState{TaskAssigned, TaskExecuting}).
		First(&t).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

// TasksByKindAndState lists tasks matching kind and state.
func (s *Store) TasksByKindAndState(kind TaskKind, state TaskState) ([]Task, error) {
	var tasks []Task
	err := s.db.Where("kind = ? AND state = ?", kind, state).Order("task_id").Find(&tasks).Error
	return tasks, err
}

// StaleExecutingTasks returns executing tasks whose StartedAt predates cutoff
// or is missing entirely. A task that entered Executing without a timestamp
// is always considered stale.
func (s *Store) StaleExecutingTasks(cutoff time.Time) ([]Task, error) {
	var tasks []Task
	err := s.db.
		Where("state = ? AND (started_at < ? OR started_at IS NULL)", TaskExecuting, cutoff).
		Find(&tasks).Error
	return tasks, err
}

// MaxTaskSeq returns the highest sequence number issued for tasks on the
// given UTC day ("20060102"), or 0 when none exist. The 4-digit zero-padded
// suffix sorts lexicographically, so the max ID carries the max sequence.
func (s *Store) MaxTaskSeq(day string) (int, error) {
	var t Task
	err := s.db.
		Where("task_id LIKE ?", "TASK-"+day+"-%").
		Order("task_id DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseSeq(t.TaskID)
}

// --- Fire detections ---

// CreateDetection inserts a new fire detection.
func (s *Store) CreateDetection(d *FireDetection) error {
	return s.db.Create(d).Error
}

// DetectionByID fetches a detection by its public identifier.
func (s *Store) DetectionByID(detectionID string) (*FireDetection, error) {
	var d FireDetection
	if err := s.db.Where("detection_id = ?", detectionID).First(&d).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

// SaveDetection persists all fields of an already-loaded detection.
func (s *Store) SaveDetection(d *FireDetection) error {
	return s.db.Save(d).Error
}

// DispatchedDetectionsFor returns the detections currently dispatched to the
// given firefighter drone.
func (s *Store) DispatchedDetectionsFor(droneKey uint) ([]FireDetection, error) {
	var ds []FireDetection
	err := s.db.
		Where("dispatched_fd_id = ? AND status = ?", droneKey, DetectionDispatched).
		Find(&ds).Error
	return ds, err
}

// MaxDetectionSeq returns the highest detection sequence for the given UTC day.
func (s *Store) MaxDetectionSeq(day string) (int, error) {
	var d FireDetection
	err := s.db.
		Where("detection_id LIKE ?", "FIRE-"+day+"-%").
		Order("detection_id DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseSeq(d.DetectionID)
}

// --- Assignment cursor ---

// Cursor returns the persisted round-robin cursor for the kind, or an empty
// cursor when no assignment has happened yet.
func (s *Store) Cursor(kind DroneKind) (*AssignmentCursor, error) {
	var c AssignmentCursor
	err := s.db.Where("kind = ?", kind).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AssignmentCursor{Kind: kind}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCursor records the drone most recently assigned for the kind.
func (s *Store) SetCursor(kind DroneKind, droneID string) error {
	c := AssignmentCursor{Kind: kind, LastDroneID: droneID, UpdatedAt: time.Now().UTC()}
	return s.db.Save(&c).Error
}

// --- Telemetry ---

// RecordTelemetry appends one telemetry sample.
func (s *Store) RecordTelemetry(t *Telemetry) error {
	return s.db.Create(t).Error
}

// LatestTelemetry returns the drone's newest telemetry sample.
func (s *Store) LatestTelemetry(droneKey uint) (*Telemetry, error) {
	var t Telemetry
	err := s.db.
		Where("drone_id = ?", droneKey).
		Order("timestamp DESC, id DESC").
		First(&t).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

// --- Aggregates ---

// SystemStatus is a read-only snapshot of entity counts.
type SystemStatus struct {
	Drones     DroneCounts     `json:"drones"`
	Tasks      TaskCounts      `json:"tasks"`
	Detections DetectionCounts `json:"detections"`
}

type DroneCounts struct {
	Total        int64 `json:"total"`
	Idle         int64 `json:"idle"`
	Flying       int64 `json:"flying"`
	Charging     int64 `json:"charging"`
	Scouters     int64 `json:"scouters"`
	Firefighters int64 `json:"firefighters"`
}

type TaskCounts struct {
	Total     int64 `json:"total"`
	Created   int64 `json:"created"`
	Assigned  int64 `json:"assigned"`
	Executing int64 `json:"executing"`
	Completed int64 `json:"completed"`
}

type DetectionCounts struct {
	Total      int64 `json:"total"`
	Detected   int64 `json:"detected"`
	Dispatched int64 `json:"dispatched"`
	Suppressed int64 `json:"suppressed"`
}

// Status aggregates drone, task and detection counts. No side effects.
func (s *Store) Status() (*SystemStatus, error) {
	var st SystemStatus

	if err := s.count(&Drone{}, "", &st.Drones.Total); err != nil {
		return nil, err
	}
	for state, dst := range map[DroneState]*int64{
		DroneIdle:     &st.Drones.Idle,
		DroneFlying:   &st.Drones.Flying,
		DroneCharging: &st.Drones.Charging,
	} {
		if err := s.db.Model(&Drone{}).Where("state = ?", state).Count(dst).Error; err != nil {
			return nil, err
		}
	}
	for kind, dst := range map[DroneKind]*int64{
		DroneScouter:     &st.Drones.Scouters,
		DroneFirefighter: &st.Drones.Firefighters,
	} {
		if err := s.db.Model(&Drone{}).Where("kind = ?", kind).Count(dst).Error; err != nil {
			return nil, err
		}
	}

	if err := s.count(&Task{}, "", &st.Tasks.Total); err != nil {
		return nil, err
	}
	for state, dst := range map[TaskState]*int64{
		TaskCreated:   &st.Tasks.Created,
		TaskAssigned:  &st.Tasks.Assigned,
		TaskExecuting: &st.Tasks.Executing,
		TaskCompleted: &st.Tasks.Completed,
	} {
		if err := s.db.Model(&Task{}).Where("state = ?", state).Count(dst).Error; err != nil {
			return nil, err
		}
	}

	if err := s.count(&FireDetection{}, "", &st.Detections.Total); err != nil {
		return nil, err
	}
	for status, dst := range map[DetectionStatus]*int64{
		DetectionDetected:   &st.Detections.Detected,
		DetectionDispatched: &st.Detections.Dispatched,
		DetectionSuppressed: &st.Detections.Suppressed,
	} {
		if err := s.db.Model(&FireDetection{}).Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, err
		}
	}

	return &st, nil
}

func (s *Store) count(model any, cond string, dst *int64, args ...any) error {
	q := s.db.Model(model)
	if cond != "" {
		q = q.Where(cond, args...)
	}
	return q.Count(dst).Error
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func parseSeq(id string) (int, error) {
	idx := strings.LastIndex(id, "-")
	if idx < 0 {
		return 0, fmt.Errorf("malformed id %q", id)
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", id, err)
	}
	return n, nil
}
