package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"fireplane/internal/config"
	"fireplane/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "groundctl",
	Short: "groundctl is the ground station command line for the fireplane fleet",
	Long: `groundctl is the operator interface for the fireplane wildfire response fleet.

The fleet is split into scouter drones (SD) that fly serpentine thermal scans
over assigned areas and firefighter drones (FD) dispatched to confirmed fire
detections. The ground station owns the entity store; each drone runs a
droned agent reachable over HTTP.

Common workflows:

  Initialize the drone pool from config:
    groundctl init-pool

  Fly a batch of scout missions over an area file:
    groundctl batch --areas areas.yaml --mode parallel --workers 3

  Inspect fleet and task state:
    groundctl status

  Run the long-lived event listener for distributed agents:
    groundctl serve --bind 0.0.0.0:5100 --drone SD-001=10.0.0.12:5000

  Emergency-control a single drone agent:
    groundctl emergency rtl --host 10.0.0.12 --port 5000

Configuration is read from fireplane.yaml in the working directory, or from
the file named by --config. Environment variables prefixed FIREPLANE_
override file values.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fireplane.yaml)")
}

// loadConfig reads the station configuration and builds a logger for it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.System.Level()), nil
}
