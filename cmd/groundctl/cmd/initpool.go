package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"fireplane/internal/config"
	"fireplane/internal/store"
)

var initPoolCmd = &cobra.Command{
	Use:   "init-pool",
	Short: "Create the drone pool from config",
	Long: `Seed the entity store with the configured scouter and firefighter drones.

Safe to run repeatedly: if the store already holds any drones the pool is
left untouched.`,
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
		cmd.Printf("drone pool ready: %d scouters, %d firefighters\n",
			cfg.DronePool.Scouters.Count, cfg.DronePool.Firefighters.Count)
		return nil
	},
}

// initPool seeds the drone pool from config. Idempotent.
func initPool(st *store.Store, cfg *config.Config, log *slog.Logger) error {
	sd := cfg.DronePool.Scouters
	fd := cfg.DronePool.Firefighters
	return st.InitDronePool(log,
		store.DronePoolSpec{
			Kind:               store.DroneScouter,
			Prefix:             sd.Prefix,
			Count:              sd.Count,
			BatteryCapacityMAh: sd.BatteryCapacityMAh,
			MaxFlightTimeMin:   sd.MaxFlightTimeMin,
			CruiseSpeedMS:      sd.CruiseSpeedMS,
			CruiseAltitudeM:    sd.CruiseAltitudeM,
			HomeLat:            cfg.DronePool.HomeLat,
			HomeLon:            cfg.DronePool.HomeLon,
		},
		store.DronePoolSpec{
			Kind:               store.DroneFirefighter,
			Prefix:             fd.Prefix,
			Count:              fd.Count,
			BatteryCapacityMAh: fd.BatteryCapacityMAh,
			MaxFlightTimeMin:   fd.MaxFlightTimeMin,
			CruiseSpeedMS:      fd.CruiseSpeedMS,
			CruiseAltitudeM:    fd.CruiseAltitudeM,
			PayloadCapacityKg:  fd.PayloadCapacityKg,
			HomeLat:            cfg.DronePool.HomeLat,
			HomeLon:            cfg.DronePool.HomeLon,
		},
	)
}

func init() {
	rootCmd.AddCommand(initPoolCmd)
}
