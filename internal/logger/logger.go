// Package logger provides structured logging setup using slog.
// Mission identifiers travel through context values instead of global
// mutable state, so components stay testable in isolation.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type taskIDKey struct{}
type droneIDKey struct{}

// New creates a new structured JSON logger at the given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// WithMission returns a context carrying the task and drone IDs of the
// mission in flight.
func WithMission(ctx context.Context, taskID, droneID string) context.Context {
	ctx = context.WithValue(ctx, taskIDKey{}, taskID)
	return context.WithValue(ctx, droneIDKey{}, droneID)
}

// TaskIDFromContext extracts the mission task ID, or "".
func TaskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(taskIDKey{}).(string); ok {
		return v
	}
	return ""
}

// DroneIDFromContext extracts the mission drone ID, or "".
func DroneIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(droneIDKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns base enriched with any mission fields present in ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if taskID := TaskIDFromContext(ctx); taskID != "" {
		l = l.With("task_id", taskID)
	}
	if droneID := DroneIDFromContext(ctx); droneID != "" {
		l = l.With("drone_id", droneID)
	}
	return l
}
