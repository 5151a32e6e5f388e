// Package config loads the fireplane configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the ground station and drone agents.
type Config struct {
	System         SystemConfig         `mapstructure:"system"`
	Database       DatabaseConfig       `mapstructure:"database"`
	DronePool      DronePoolConfig      `mapstructure:"drone_pool"`
	MissionPlan    MissionPlanConfig    `mapstructure:"mission_planning"`
	FireDetection  FireDetectionConfig  `mapstructure:"fire_detection"`
	Network        NetworkConfig        `mapstructure:"network"`
	DroneControl   DroneControlConfig   `mapstructure:"drone_control"`
	Agent          AgentConfig          `mapstructure:"agent"`
}

type SystemConfig struct {
	Name      string `mapstructure:"name"`
	StationID string `mapstructure:"station_id"`
	LogLevel  string `mapstructure:"log_level"`
}

// Level parses the configured log level, defaulting to info.
func (s SystemConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DroneClassConfig describes one kind's slice of the pool.
type DroneClassConfig struct {
	Count              int     `mapstructure:"count"`
	Prefix             string  `mapstructure:"prefix"`
	BatteryCapacityMAh int     `mapstructure:"battery_capacity_mah"`
	MaxFlightTimeMin   float64 `mapstructure:"max_flight_time_min"`
	CruiseSpeedMS      float64 `mapstructure:"cruise_speed_ms"`
	CruiseAltitudeM    float64 `mapstructure:"cruise_altitude_m"`
	PayloadCapacityKg  float64 `mapstructure:"payload_capacity_kg"`
}

type DronePoolConfig struct {
	Scouters     DroneClassConfig `mapstructure:"scouter_drones"`
	Firefighters DroneClassConfig `mapstructure:"firefighter_drones"`
	HomeLat      float64          `mapstructure:"home_latitude"`
	HomeLon      float64          `mapstructure:"home_longitude"`
}

type MissionPlanConfig struct {
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
}

type ExecutionConfig struct {
	Mode                 string  `mapstructure:"mode"`
	ParallelMaxWorkers   int     `mapstructure:"parallel_max_workers"`
	TaskDispatchDelaySec float64 `mapstructure:"task_dispatch_delay_sec"`
	MissionDelaySec      float64 `mapstructure:"delay_between_missions_sec"`
	StopOnError          bool    `mapstructure:"stop_on_error"`
}

type AssignmentConfig struct {
	MinBatteryPercent float64 `mapstructure:"min_battery_percent"`
}

type FireDetectionConfig struct {
	ThermalThresholdC float64      `mapstructure:"thermal_threshold_c"`
	Alerts            AlertsConfig `mapstructure:"alerts"`
}

type AlertsConfig struct {
	MinConfidence         float64 `mapstructure:"min_confidence"`
	ImmediateDispatch     bool    `mapstructure:"immediate_dispatch"`
	SuppressionMinBattery float64 `mapstructure:"suppression_min_battery_percent"`
}

type EndpointConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type NetworkConfig struct {
	Protocol   string         `mapstructure:"protocol"`
	TimeoutSec float64        `mapstructure:"timeout_sec"`
	Primary    EndpointConfig `mapstructure:"primary"`
	Backup     EndpointConfig `mapstructure:"backup"`
}

// Timeout returns the control-plane request timeout as a duration.
func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSec * float64(time.Second))
}

type DroneControlConfig struct {
	Mode     string             `mapstructure:"mode"`
	Demo     DemoControlConfig  `mapstructure:"demo"`
	Hardware HardwareConfig     `mapstructure:"hardware"`
}

type DemoControlConfig struct {
	SimulateDelays   bool    `mapstructure:"simulate_delays"`
	BatteryDrainRate float64 `mapstructure:"battery_drain_rate"`
}

type HardwareConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Baud             int    `mapstructure:"baud"`
}

type AgentConfig struct {
	Bind                 string  `mapstructure:"bind"`
	TelemetryIntervalSec float64 `mapstructure:"telemetry_interval_sec"`
	// GroundURL is the ground station event endpoint. Empty disables
	// drone-to-ground event publishing.
	GroundURL string `mapstructure:"ground_url"`
}

// Load reads the configuration file at path, or searches the working
// directory and ./config for fireplane.yaml when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fireplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix("FIREPLANE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fatal only when one was named explicitly;
		// otherwise defaults apply.
		if path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MissionPlan.Execution.Mode != "sequential" && cfg.MissionPlan.Execution.Mode != "parallel" {
		return nil, fmt.Errorf("mission_planning.execution.mode must be sequential or parallel, got %q", cfg.MissionPlan.Execution.Mode)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("system.name", "fireplane")
	v.SetDefault("system.station_id", "GS-001")
	v.SetDefault("system.log_level", "info")

	v.SetDefault("database.path", "data/fireplane.db")

	v.SetDefault("drone_pool.scouter_drones.count", 3)
	v.SetDefault("drone_pool.scouter_drones.prefix", "SD")
	v.SetDefault("drone_pool.scouter_drones.battery_capacity_mah", 5200)
	v.SetDefault("drone_pool.scouter_drones.max_flight_time_min", 25)
	v.SetDefault("drone_pool.scouter_drones.cruise_speed_ms", 5.0)
	v.SetDefault("drone_pool.scouter_drones.cruise_altitude_m", 15.24)

	v.SetDefault("drone_pool.firefighter_drones.count", 2)
	v.SetDefault("drone_pool.firefighter_drones.prefix", "FD")
	v.SetDefault("drone_pool.firefighter_drones.battery_capacity_mah", 8000)
	v.SetDefault("drone_pool.firefighter_drones.max_flight_time_min", 18)
	v.SetDefault("drone_pool.firefighter_drones.cruise_speed_ms", 6.0)
	v.SetDefault("drone_pool.firefighter_drones.cruise_altitude_m", 12.0)
	v.SetDefault("drone_pool.firefighter_drones.payload_capacity_kg", 2.5)

	v.SetDefault("drone_pool.home_latitude", 33.2271901)
	v.SetDefault("drone_pool.home_longitude", -96.8252657)

	v.SetDefault("mission_planning.execution.mode", "sequential")
	v.SetDefault("mission_planning.execution.parallel_max_workers", 3)
	v.SetDefault("mission_planning.execution.task_dispatch_delay_sec", 0.5)
	v.SetDefault("mission_planning.execution.delay_between_missions_sec", 2)
	v.SetDefault("mission_planning.execution.stop_on_error", false)
	v.SetDefault("mission_planning.assignment.min_battery_percent", 50)

	v.SetDefault("fire_detection.thermal_threshold_c", 50)
	v.SetDefault("fire_detection.alerts.min_confidence", 0.7)
	v.SetDefault("fire_detection.alerts.immediate_dispatch", true)
	v.SetDefault("fire_detection.alerts.suppression_min_battery_percent", 30)

	v.SetDefault("network.protocol", "http")
	v.SetDefault("network.timeout_sec", 10)
	v.SetDefault("network.primary.host", "127.0.0.1")
	v.SetDefault("network.primary.port", 5000)

	v.SetDefault("drone_control.mode", "demo")
	v.SetDefault("drone_control.demo.simulate_delays", false)
	v.SetDefault("drone_control.demo.battery_drain_rate", 0.1)
	v.SetDefault("drone_control.hardware.connection_string", "/dev/ttyAMA0")
	v.SetDefault("drone_control.hardware.baud", 57600)

	v.SetDefault("agent.bind", "0.0.0.0:5000")
	v.SetDefault("agent.telemetry_interval_sec", 1)
}
