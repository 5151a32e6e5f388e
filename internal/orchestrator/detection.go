package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"fireplane/internal/logger"
	"fireplane/internal/store"
)

// Detection holds the inputs for registering a fire detection.
type Detection struct {
	TaskID       string
	DroneID      string
	Latitude     float64
	Longitude    float64
	TemperatureC float64
	Confidence   float64
	Method       string
}

// RegisterFireDetection persists a confirmed fire event in Detected status.
// When immediate dispatch is enabled and confidence meets the configured
// minimum, a firefighter is dispatched synchronously before returning; a
// failed dispatch (no eligible firefighter) leaves the detection Detected
// for a later retry and is not an error.
func (o *Orchestrator) RegisterFireDetection(ctx context.Context, d Detection) (*store.FireDetection, error) {
	if d.Method == "" {
		d.Method = "thermal"
	}

	var detection *store.FireDetection
	err := o.store.Transaction(func(tx *store.Store) error {
		detectionID, err := o.nextDetectionID(tx)
		if err != nil {
			return err
		}

		detection = &store.FireDetection{
			DetectionID:     detectionID,
			Latitude:        d.Latitude,
			Longitude:       d.Longitude,
			TemperatureC:    d.TemperatureC,
			Confidence:      d.Confidence,
			DetectionMethod: d.Method,
			Status:          store.DetectionDetected,
			DetectedAt:      o.now().UTC(),
		}
		if task, err := tx.TaskByID(d.TaskID); err == nil {
			detection.TaskID = &task.ID
		}
		if drone, err := tx.DroneByID(d.DroneID); err == nil {
			detection.DroneID = &drone.ID
		}
		return tx.CreateDetection(detection)
	})
	if err != nil {
		return nil, fmt.Errorf("register fire detection: %w", err)
	}

	log := logger.FromContext(ctx, o.log)
	log.Warn("fire detected",
		"detection_id", detection.DetectionID,
		"lat", d.Latitude, "lon", d.Longitude,
		"temperature_c", d.TemperatureC, "confidence", d.Confidence)

	alerts := o.cfg.FireDetection.Alerts
	if alerts.ImmediateDispatch && d.Confidence >= alerts.MinConfidence {
		if _, err := o.DispatchFirefighterDrone(ctx, detection.DetectionID); err != nil {
			if errors.Is(err, ErrNoDroneAvailable) {
				log.Warn("no firefighter available, detection left for retry",
					"detection_id", detection.DetectionID)
			} else {
				return nil, err
			}
		}
	}

	return detection, nil
}

// DispatchFirefighterDrone creates a suppression task over a small square
// around the detection, binds the first eligible firefighter to it directly
// in Assigned state, and marks the detection Dispatched. Returns the new
// task ID, or ErrNoDroneAvailable when no firefighter satisfies the
// suppression battery minimum (the detection stays Detected).
func (o *Orchestrator) DispatchFirefighterDrone(ctx context.Context, detectionID string) (string, error) {
	fd := o.cfg.DronePool.Firefighters
	minBattery := o.cfg.FireDetection.Alerts.SuppressionMinBattery

	var taskID string
	var droneID string
	err := o.store.Transaction(func(tx *store.Store) error {
		detection, err := tx.DetectionByID(detectionID)
		if err != nil {
			return err
		}

		candidates, err := tx.IdleDrones(store.DroneFirefighter, minBattery)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return ErrNoDroneAvailable
		}
		drone := &candidates[0]

		taskID, err = o.nextTaskID(tx)
		if err != nil {
			return err
		}

		// ~10 m square around the detection point.
		const offset = 0.0001
		now := o.now().UTC()
		task := &store.Task{
			TaskID:          taskID,
			Kind:            store.TaskSuppress,
			State:           store.TaskAssigned,
			Priority:        "high",
			CornerALat:      detection.Latitude + offset,
			CornerALon:      detection.Longitude - offset,
			CornerBLat:      detection.Latitude + offset,
			CornerBLon:      detection.Longitude + offset,
			CornerCLat:      detection.Latitude - offset,
			CornerCLon:      detection.Longitude + offset,
			CornerDLat:      detection.Latitude - offset,
			CornerDLon:      detection.Longitude - offset,
			CruiseAltitudeM: fd.CruiseAltitudeM,
			CruiseSpeedMS:   fd.CruiseSpeedMS,
			Pattern:         "suppression",
			DroneID:         &drone.ID,
			AssignedAt:      &now,
		}
		if err := tx.CreateTask(task); err != nil {
			return err
		}

		detection.Status = store.DetectionDispatched
		detection.DispatchedFDID = &drone.ID
		detection.DispatchedAt = &now
		if err := tx.SaveDetection(detection); err != nil {
			return err
		}

		drone.State = store.DroneAssigned
		droneID = drone.DroneID
		return tx.SaveDrone(drone)
	})
	if err != nil {
		if errors.Is(err, ErrNoDroneAvailable) {
			return "", ErrNoDroneAvailable
		}
		return "", fmt.Errorf("dispatch firefighter for %s: %w", detectionID, err)
	}

	logger.FromContext(ctx, o.log).Info("dispatched firefighter",
		"detection_id", detectionID, "drone_id", droneID, "task_id", taskID)
	return taskID, nil
}
