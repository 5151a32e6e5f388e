package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database. All multi-entity mutations go through
// Transaction so partial application is never observable.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the database file at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return open(path)
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Every pooled connection to a plain :memory: DSN would see its own
	// empty database, so the in-memory store must stay on one connection.
	if dsn == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&Drone{},
		&Task{},
		&FireDetection{},
		&AssignmentCursor{},
		&Telemetry{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a transactional store view. If fn returns an
// error the whole transaction rolls back and the error propagates.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// DronePoolSpec describes one kind's slice of the drone pool.
type DronePoolSpec struct {
	Kind               DroneKind
	Prefix             string
	Count              int
	BatteryCapacityMAh int
	MaxFlightTimeMin   float64
	CruiseSpeedMS      float64
	CruiseAltitudeM    float64
	PayloadCapacityKg  float64 // firefighters only
	HomeLat            float64
	HomeLon            float64
}

// InitDronePool creates the configured drones. Idempotent: if any drones
// already exist the pool is left untouched.
func (s *Store) InitDronePool(log *slog.Logger, specs ...DronePoolSpec) error {
	return s.Transaction(func(tx *Store) error {
		var existing int64
		if err := tx.db.Model(&Drone{}).Count(&existing).Error; err != nil {
			return fmt.Errorf("count drones: %w", err)
		}
		if existing > 0 {
			log.Info("drone pool already initialized", "drones", existing)
			return nil
		}

		for _, spec := range specs {
			for i := 1; i <= spec.Count; i++ {
				d := Drone{
					DroneID:            fmt.Sprintf("%s-%03d", spec.Prefix, i),
					Kind:               spec.Kind,
					State:              DroneIdle,
					BatteryPercent:     100,
					BatteryCapacityMAh: spec.BatteryCapacityMAh,
					MaxFlightTimeMin:   spec.MaxFlightTimeMin,
					CruiseSpeedMS:      spec.CruiseSpeedMS,
					CruiseAltitudeM:    spec.CruiseAltitudeM,
					CurrentLat:         ptr(spec.HomeLat),
					CurrentLon:         ptr(spec.HomeLon),
					CurrentAlt:         ptr(0.0),
				}
				if spec.Kind == DroneFirefighter {
					d.PayloadCapacityKg = ptr(spec.PayloadCapacityKg)
					d.PayloadRemainingKg = ptr(spec.PayloadCapacityKg)
				}
				if err := tx.db.Create(&d).Error; err != nil {
					return fmt.Errorf("create drone %s: %w", d.DroneID, err)
				}
			}
			log.Info("initialized drones", "kind", spec.Kind, "count", spec.Count)
		}
		return nil
	})
}

func ptr[T any](v T) *T { return &v }
