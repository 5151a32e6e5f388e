package cmd

import (
	"github.com/spf13/cobra"

	"fireplane/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet, task, and detection counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		status, err := st.Status()
		if err != nil {
			return err
		}

		cmd.Printf("Station %s\n", cfg.System.StationID)
		cmd.Println("──────────────────────────────")
		cmd.Printf("Drones      total=%d idle=%d flying=%d charging=%d (SD=%d FD=%d)\n",
			status.Drones.Total, status.Drones.Idle, status.Drones.Flying,
			status.Drones.Charging, status.Drones.Scouters, status.Drones.Firefighters)
		cmd.Printf("Tasks       total=%d created=%d assigned=%d executing=%d completed=%d\n",
			status.Tasks.Total, status.Tasks.Created, status.Tasks.Assigned,
			status.Tasks.Executing, status.Tasks.Completed)
		cmd.Printf("Detections  total=%d detected=%d dispatched=%d suppressed=%d\n",
			status.Detections.Total, status.Detections.Detected,
			status.Detections.Dispatched, status.Detections.Suppressed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
