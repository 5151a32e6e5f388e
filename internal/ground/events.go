package ground

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fireplane/internal/orchestrator"
	"fireplane/internal/store"
	"fireplane/pkg/api"
)

// EventServer receives asynchronous drone-to-ground messages: hotspot
// alerts, mission results, telemetry. Commands flow the other way through
// Client; the two never share a connection.
type EventServer struct {
	orch       *orchestrator.Orchestrator
	st         *store.Store
	log        *slog.Logger
	httpServer *http.Server
}

// NewEventServer creates the ground-side event listener.
func NewEventServer(addr string, orch *orchestrator.Orchestrator, st *store.Store, log *slog.Logger) *EventServer {
	s := &EventServer{orch: orch, st: st, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", s.handleEvent)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the event server. It blocks until the context is cancelled.
func (s *EventServer) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(shutDownCtx)
	}
}

// Handler exposes the mux for tests.
func (s *EventServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *EventServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	var msg api.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid message envelope", http.StatusBadRequest)
		return
	}
	if msg.SenderID == "" {
		http.Error(w, "sender_id is required", http.StatusBadRequest)
		return
	}

	if err := s.dispatch(r.Context(), msg); err != nil {
		s.log.Error("event dispatch", "type", msg.Type, "sender_id", msg.SenderID,
			"message_id", msg.ID, "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// dispatch routes one message to the store or orchestrator. Unknown types
// are an error: a silently dropped alert is worse than a failing agent.
func (s *EventServer) dispatch(ctx context.Context, msg api.Message) error {
	switch msg.Type {
	case api.MessageHotspotAlert:
		var alert api.HotspotAlert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			return err
		}
		return s.handleHotspot(ctx, msg.SenderID, alert)

	case api.MessageMissionComplete:
		var result api.MissionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			return err
		}
		task, err := s.st.TaskByID(result.TaskID)
		if err != nil {
			return err
		}
		// A finished suppression flight also closes out the detections its
		// drone was dispatched to.
		if task.Kind == store.TaskSuppress {
			return s.orch.CompleteSuppressionTask(ctx, result.TaskID, result.DataPath)
		}
		return s.orch.CompleteTask(ctx, result.TaskID, result.HotspotsDetected, result.DataPath)

	case api.MessageMissionFailed:
		var result api.MissionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			return err
		}
		return s.orch.FailTask(ctx, result.TaskID, "reported by agent")

	case api.MessageTelemetry, api.MessageStatusReport:
		var status api.StatusResponse
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return err
		}
		return s.recordTelemetry(msg.SenderID, status)

	default:
		return errors.New("unsupported message type " + string(msg.Type))
	}
}

// handleHotspot registers a detection for the alert, attributed to the
// sending drone's active task when it has one.
func (s *EventServer) handleHotspot(ctx context.Context, droneID string, alert api.HotspotAlert) error {
	taskID := ""
	if drone, err := s.st.DroneByID(droneID); err == nil {
		if task, err := s.st.ActiveTaskForDrone(drone.ID); err == nil {
			taskID = task.TaskID
		}
	}

	_, err := s.orch.RegisterFireDetection(ctx, orchestrator.Detection{
		TaskID:       taskID,
		DroneID:      droneID,
		Latitude:     alert.Latitude,
		Longitude:    alert.Longitude,
		TemperatureC: alert.TemperatureC,
		Confidence:   alert.Confidence,
		Method:       "thermal",
	})
	return err
}

func (s *EventServer) recordTelemetry(droneID string, status api.StatusResponse) error {
	sample := store.Telemetry{
		Timestamp:      time.Now().UTC(),
		Latitude:       status.Position.Lat,
		Longitude:      status.Position.Lon,
		Altitude:       status.Position.Alt,
		Heading:        status.Heading,
		BatteryPercent: status.Battery,
		SpeedMS:        status.Speed,
	}
	if drone, err := s.st.DroneByID(droneID); err == nil {
		sample.DroneID = &drone.ID
		if task, err := s.st.ActiveTaskForDrone(drone.ID); err == nil {
			sample.TaskID = &task.ID
		}
	}
	return s.st.RecordTelemetry(&sample)
}
