package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fireplane/internal/ground"
	"fireplane/internal/orchestrator"
	"fireplane/internal/store"
)

var (
	serveBind       string
	serveDrones     []string
	serveStaleAfter time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ground station event listener",
	Long: `Run the long-lived ground station process. It accepts drone events
(hotspot alerts, mission results, telemetry) on /api/events, probes
registered drones for liveness, and periodically reclaims tasks left
executing by crashed agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := initPool(st, cfg, log); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-quit
			log.Info("shutdown requested")
			cancel()
		}()

		orch := orchestrator.New(st, cfg, log)
		events := ground.NewEventServer(serveBind, orch, st, log)

		client := ground.NewClient(cfg.Network.Timeout(), log)
		for _, spec := range serveDrones {
			droneID, addr, err := splitDroneSpec(spec)
			if err != nil {
				return err
			}
			client.Register(droneID, addr)
		}
		if len(serveDrones) > 0 {
			go client.RunHeartbeatMonitor(ctx, 5*time.Second)
		}

		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := orch.ResetStaleTasks(ctx, serveStaleAfter); err != nil {
						log.Error("stale task sweep", "error", err)
					}
				}
			}
		}()

		log.Info("ground station listening", "addr", serveBind, "drones", len(serveDrones))
		return events.Run(ctx)
	},
}

func splitDroneSpec(spec string) (droneID, addr string, err error) {
	droneID, addr, ok := strings.Cut(spec, "=")
	if !ok || droneID == "" || addr == "" {
		return "", "", fmt.Errorf("invalid --drone %q, want id=host:port", spec)
	}
	return droneID, addr, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "0.0.0.0:5100", "Event listener address")
	serveCmd.Flags().StringSliceVar(&serveDrones, "drone", nil,
		"Drone to monitor as id=host:port (repeatable)")
	serveCmd.Flags().DurationVar(&serveStaleAfter, "stale-after", time.Hour,
		"Cancel executing tasks older than this")
	rootCmd.AddCommand(serveCmd)
}
