// Package store contains the persistence layer for fireplane.
// The store is the single mutable owner of drones, tasks, and fire
// detections; every other component works with IDs and re-reads state
// through it.
package store

import "time"

// DroneKind distinguishes the two fleet roles.
type DroneKind string

const (
	DroneScouter     DroneKind = "SD"
	DroneFirefighter DroneKind = "FD"
)

// DroneState is the operational state of a drone.
type DroneState string

const (
	DroneIdle        DroneState = "idle"
	DroneCharging    DroneState = "charging"
	DroneAssigned    DroneState = "assigned"
	DroneFlying      DroneState = "flying"
	DroneReturning   DroneState = "returning"
	DroneMaintenance DroneState = "maintenance"
	DroneOffline     DroneState = "offline"
)

// TaskState is a strict forward state machine; no state is re-entered.
type TaskState string

const (
	TaskCreated   TaskState = "created"
	TaskAssigned  TaskState = "assigned"
	TaskExecuting TaskState = "executing"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
	// Archived and Deleted are reserved for a future retention policy.
	TaskArchived TaskState = "archived"
	TaskDeleted  TaskState = "deleted"
)

// TaskKind is the mission type of a task.
type TaskKind string

const (
	TaskScout    TaskKind = "scout"
	TaskSuppress TaskKind = "suppress"
)

// DetectionStatus tracks a fire detection through its lifecycle.
// Transitions detected -> dispatched -> suppressed are monotonic.
type DetectionStatus string

const (
	DetectionDetected   DetectionStatus = "detected"
	DetectionDispatched DetectionStatus = "dispatched"
	DetectionSuppressed DetectionStatus = "suppressed"
	DetectionFalseAlarm DetectionStatus = "false_alarm"
)

// Drone represents one fleet unit. Created at pool initialization,
// mutated by the orchestrator on assignment and completion, never deleted.
type Drone struct {
	ID      uint       `gorm:"primaryKey"`
	DroneID string     `gorm:"uniqueIndex;size:50;not null"`
	Kind    DroneKind  `gorm:"size:10;not null"`
	State   DroneState `gorm:"size:20;default:idle"`

	BatteryPercent     float64 `gorm:"default:100"`
	BatteryCapacityMAh int

	MaxFlightTimeMin float64
	CruiseSpeedMS    float64
	CruiseAltitudeM  float64

	CurrentLat *float64
	CurrentLon *float64
	CurrentAlt *float64

	// Payload is only populated for firefighter drones.
	PayloadCapacityKg  *float64
	PayloadRemainingKg *float64

	TotalFlights       int     `gorm:"default:0"`
	TotalFlightTimeMin float64 `gorm:"default:0"`
	LastMaintenance    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task represents one mission. Identified by TASK-<YYYYMMDD>-<seq>.
type Task struct {
	ID       uint      `gorm:"primaryKey"`
	TaskID   string    `gorm:"uniqueIndex;size:50;not null"`
	Kind     TaskKind  `gorm:"size:20"`
	State    TaskState `gorm:"size:20;default:created"`
	Priority string    `gorm:"size:10;default:medium"`

	// Rectangular flight area, corners A-D.
	CornerALat float64
	CornerALon float64
	CornerBLat float64
	CornerBLon float64
	CornerCLat float64
	CornerCLon float64
	CornerDLat float64
	CornerDLon float64

	CruiseAltitudeM float64
	CruiseSpeedMS   float64
	Pattern         string `gorm:"size:20;default:serpentine"`

	// DroneID is the internal key of the assigned drone; nil until Assigned.
	// Cancelled tasks retain the reference for audit.
	DroneID     *uint `gorm:"index"`
	AssignedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	HotspotsDetected int `gorm:"default:0"`
	FiresSuppressed  int `gorm:"default:0"`
	DataPath         string

	CreatedAt time.Time
	UpdatedAt time.Time
	Notes     string
}

// FireDetection is a confirmed sensor/ML fire event. Identified by
// FIRE-<YYYYMMDD>-<seq>.
type FireDetection struct {
	ID          uint   `gorm:"primaryKey"`
	DetectionID string `gorm:"uniqueIndex;size:50;not null"`

	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
	Altitude  *float64

	TemperatureC    float64
	Confidence      float64
	DetectionMethod string `gorm:"size:30"`

	TaskID  *uint `gorm:"index"`
	DroneID *uint `gorm:"index"`

	Status DetectionStatus `gorm:"size:20;default:detected"`
	// DispatchedFDID is the internal key of the firefighter drone sent to
	// this detection.
	DispatchedFDID *uint `gorm:"index"`

	DetectedAt   time.Time
	DispatchedAt *time.Time
	SuppressedAt *time.Time
}

// AssignmentCursor persists the round-robin position per drone kind.
// It is updated in the same transaction as the assignment it reflects,
// so fairness survives process restarts without a recovery scan.
type AssignmentCursor struct {
	Kind        DroneKind `gorm:"primaryKey;size:10"`
	LastDroneID string    `gorm:"size:50"`
	UpdatedAt   time.Time
}

// Telemetry is a positional/battery sample streamed by an agent.
type Telemetry struct {
	ID      uint  `gorm:"primaryKey"`
	DroneID *uint `gorm:"index"`
	TaskID  *uint `gorm:"index"`

	Timestamp time.Time `gorm:"not null"`
	Latitude  float64
	Longitude float64
	Altitude  float64
	Heading   float64

	BatteryPercent float64
	SpeedMS        float64
}
