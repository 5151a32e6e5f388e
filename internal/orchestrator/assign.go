package orchestrator

import (
	"context"
	"fmt"

	"fireplane/internal/logger"
	"fireplane/internal/store"
)

// AssignTaskToDrone selects an idle drone of the kind the task requires and
// binds it to the task. Selection is round-robin over candidates ordered by
// drone ID, resuming from the persisted cursor; the cursor only advances
// when a drone is actually selected, in the same transaction as the
// assignment. Returns ErrNoDroneAvailable and leaves all state unchanged
// when no candidate satisfies the battery floor.
//
// Round-robin rather than random or greedy-battery: random assignment skews
// load badly across a small fleet, and the battery floor already enforces
// the hard safety minimum.
func (o *Orchestrator) AssignTaskToDrone(ctx context.Context, taskID string) (*store.Drone, error) {
	minBattery := o.cfg.MissionPlan.Assignment.MinBatteryPercent

	var selected *store.Drone
	err := o.store.Transaction(func(tx *store.Store) error {
		task, err := tx.TaskByID(taskID)
		if err != nil {
			return err
		}

		kind := store.DroneScouter
		if task.Kind == store.TaskSuppress {
			kind = store.DroneFirefighter
		}

		candidates, err := tx.IdleDrones(kind, minBattery)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return ErrNoDroneAvailable
		}

		cursor, err := tx.Cursor(kind)
		if err != nil {
			return err
		}
		lastIdx := -1
		for i := range candidates {
			if candidates[i].DroneID == cursor.LastDroneID {
				lastIdx = i
				break
			}
		}

		// Walk forward from the cursor, wrapping modulo the candidate count.
		// The battery check inside the walk is defensive; the candidate
		// query already filtered on it.
		for i := 0; i < len(candidates); i++ {
			next := (lastIdx + 1 + i) % len(candidates)
			if candidates[next].BatteryPercent >= minBattery {
				selected = &candidates[next]
				break
			}
		}
		if selected == nil {
			selected = &candidates[0]
			for i := range candidates {
				if candidates[i].BatteryPercent > selected.BatteryPercent {
					selected = &candidates[i]
				}
			}
			logger.FromContext(ctx, o.log).Warn("round-robin walk found no drone, using highest battery",
				"kind", kind)
		}

		now := o.now().UTC()
		task.DroneID = &selected.ID
		task.State = store.TaskAssigned
		task.AssignedAt = &now
		if err := tx.SaveTask(task); err != nil {
			return err
		}

		selected.State = store.DroneAssigned
		if err := tx.SaveDrone(selected); err != nil {
			return err
		}

		return tx.SetCursor(kind, selected.DroneID)
	})
	if err != nil {
		return nil, fmt.Errorf("assign task %s: %w", taskID, err)
	}

	logger.FromContext(ctx, o.log).Info("assigned task",
		"task_id", taskID, "drone_id", selected.DroneID, "battery", selected.BatteryPercent)
	return selected, nil
}
