// Package api contains the shared JSON wire contract for the control plane.
// This package is shared between the ground station client and the drone agent.
package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies a control-plane message.
type MessageType string

// Ground station -> drone messages.
const (
	MessageMissionAssign MessageType = "mission_assign"
	MessageMissionStart  MessageType = "mission_start"
	MessageMissionAbort  MessageType = "mission_abort"
	MessageRTLCommand    MessageType = "rtl_command"
	MessageStatusRequest MessageType = "status_request"
	MessageHeartbeat     MessageType = "heartbeat"
)

// Drone -> ground station messages.
const (
	MessageStatusReport    MessageType = "status_report"
	MessageTelemetry       MessageType = "telemetry"
	MessageHotspotAlert    MessageType = "hotspot_alert"
	MessageMissionComplete MessageType = "mission_complete"
	MessageMissionFailed   MessageType = "mission_failed"
	MessageHeartbeatAck    MessageType = "heartbeat_ack"
)

// Message is the envelope every control-plane payload travels in.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	SenderID  string          `json:"sender_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope around an already-marshaled payload.
func NewMessage(t MessageType, senderID string, data json.RawMessage) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      t,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// MissionConfig carries the flight parameters an agent needs to execute a task.
type MissionConfig struct {
	CornerALat     float64 `json:"corner_a_lat"`
	CornerALon     float64 `json:"corner_a_lon"`
	CornerBLat     float64 `json:"corner_b_lat"`
	CornerBLon     float64 `json:"corner_b_lon"`
	CornerCLat     float64 `json:"corner_c_lat"`
	CornerCLon     float64 `json:"corner_c_lon"`
	CornerDLat     float64 `json:"corner_d_lat"`
	CornerDLon     float64 `json:"corner_d_lon"`
	CruiseAltitude float64 `json:"cruise_altitude_m"`
	CruiseSpeed    float64 `json:"cruise_speed_ms"`
	Pattern        string  `json:"pattern,omitempty"`
}

// AssignMissionRequest is the body for POST /api/mission/assign.
type AssignMissionRequest struct {
	TaskID        string        `json:"task_id"`
	MissionConfig MissionConfig `json:"mission_config"`
}

// RTLRequest is the optional body for POST /api/rtl.
type RTLRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HeartbeatRequest is the body for POST /api/heartbeat.
type HeartbeatRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

// CommandResponse is the uniform response for every POST endpoint on the agent.
type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	DroneID string `json:"drone_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// Position is a GPS fix.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// StatusResponse is the body for GET /api/status.
type StatusResponse struct {
	DroneID     string    `json:"drone_id"`
	State       string    `json:"state"`
	Timestamp   time.Time `json:"timestamp"`
	Mode        string    `json:"mode"`
	CurrentTask string    `json:"current_task,omitempty"`
	Connected   bool      `json:"connected"`
	Armed       bool      `json:"armed"`
	Battery     float64   `json:"battery"`
	Position    Position  `json:"position"`
	Speed       float64   `json:"speed"`
	Heading     float64   `json:"heading"`
	FlightMode  string    `json:"flight_mode"`
}

// HeartbeatResponse is the body for POST /api/heartbeat.
type HeartbeatResponse struct {
	Success   bool      `json:"success"`
	DroneID   string    `json:"drone_id"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// HotspotAlert is the payload of a hotspot_alert message.
type HotspotAlert struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	TemperatureC float64   `json:"temperature_c"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}

// MissionResult is the payload of a mission_complete message.
type MissionResult struct {
	TaskID           string  `json:"task_id"`
	HotspotsDetected int     `json:"hotspots_detected"`
	DataPath         string  `json:"data_path"`
	DurationSec      float64 `json:"duration_sec"`
	Success          bool    `json:"success"`
}

// KillConfirmation is the typed confirmation the client requires before it
// will send a kill command. The only accepted value is ConfirmKill; the
// distinct type keeps a stray bool or string from reaching the kill path.
type KillConfirmation string

// ConfirmKill is the sole accepted kill confirmation value.
const ConfirmKill KillConfirmation = "KILL"
