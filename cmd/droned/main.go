// Package main is the entry point for the drone agent.
// One droned process runs per drone unit; it owns the flight controller,
// executes missions, and serves the command API the ground station calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fireplane/internal/agent"
	"fireplane/internal/config"
	"fireplane/internal/controller"
	"fireplane/internal/logger"
	"fireplane/internal/observability"
	"fireplane/internal/orchestrator"
	"fireplane/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: fireplane.yaml in current directory)")
	droneID := flag.String("drone-id", "", "Drone identifier this agent controls (required)")
	bind := flag.String("bind", "", "Listen address, overrides agent.bind from config")
	flag.Parse()

	if *droneID == "" {
		log.Fatal("--drone-id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.System.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctrl, err := controller.New(*droneID, cfg.DroneControl)
	if err != nil {
		log.Fatalf("Failed to create flight controller: %v", err)
	}
	if err := ctrl.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect flight controller: %v", err)
	}
	defer ctrl.Disconnect()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	orch := orchestrator.New(st, cfg, slogger)
	a := agent.New(agent.Config{
		DroneID:           *droneID,
		Mode:              cfg.DroneControl.Mode,
		TelemetryInterval: time.Duration(cfg.Agent.TelemetryIntervalSec * float64(time.Second)),
	}, ctrl, orch, st, slogger)

	if cfg.Agent.GroundURL != "" {
		a.SetPublisher(agent.NewPublisher(*droneID, cfg.Agent.GroundURL, cfg.Network.Timeout(), slogger))
	}

	go a.RunTelemetry(ctx)

	addr := cfg.Agent.Bind
	if *bind != "" {
		addr = *bind
	}
	srv := agent.NewServer(addr, a, metricsHandler)

	serverErr := make(chan error, 1)
	go func() {
		slogger.Info("agent listening", "drone_id", *droneID, "addr", addr, "mode", cfg.DroneControl.Mode)
		serverErr <- srv.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("Agent server error: %v", err)
		}
	case sig := <-quit:
		fmt.Printf("Received %s, shutting down agent...\n", sig)
		cancel()
		<-serverErr
	}
}
