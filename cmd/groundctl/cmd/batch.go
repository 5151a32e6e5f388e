package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fireplane/internal/batch"
	"fireplane/internal/orchestrator"
	"fireplane/internal/store"
)

var (
	batchAreas         string
	batchMode          string
	batchWorkers       int
	batchDispatchDelay float64
	batchMissionDelay  float64
	batchValidateOnly  bool
	batchSimulateFires bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fly scout missions over every area in an area file",
	Long: `Run one scout mission per area in the given YAML or JSON area file.

Missions run sequentially or on a bounded worker pool depending on --mode.
With --simulate-fires each completed scan registers a synthetic
high-confidence detection at the area's center, and any firefighter
dispatched for it flies its suppression task before the batch finishes.

Exits non-zero if any mission fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		// Flags override the configured execution plan.
		if batchMode != "" {
			cfg.MissionPlan.Execution.Mode = batchMode
		}
		if batchWorkers > 0 {
			cfg.MissionPlan.Execution.ParallelMaxWorkers = batchWorkers
		}
		if cmd.Flags().Changed("dispatch-delay") {
			cfg.MissionPlan.Execution.TaskDispatchDelaySec = batchDispatchDelay
		}
		if cmd.Flags().Changed("mission-delay") {
			cfg.MissionPlan.Execution.MissionDelaySec = batchMissionDelay
		}

		areas, err := batch.LoadAreas(batchAreas)
		if err != nil {
			return err
		}

		if batchValidateOnly {
			var bad int
			for i := range areas {
				if err := areas[i].Validate(); err != nil {
					cmd.Printf("INVALID %v\n", err)
					bad++
				}
			}
			cmd.Printf("%d/%d areas valid\n", len(areas)-bad, len(areas))
			if bad > 0 {
				return fmt.Errorf("%d invalid areas", bad)
			}
			return nil
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
		go func() {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			cmd.Println("interrupted, cancelling batch...")
			cancel()
		}()

		orch := orchestrator.New(st, cfg, log)
		coordinator := batch.New(orch, st, cfg, cmd.OutOrStdout(), log)
		coordinator.SimulateFires = batchSimulateFires

		summary, err := coordinator.Run(ctx, areas)
		if err != nil {
			return err
		}
		if summary.ExitCode() != 0 {
			return fmt.Errorf("%d of %d missions failed", summary.Failed, summary.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchAreas, "areas", "", "mission area file, YAML or JSON (required)")
	batchCmd.Flags().StringVar(&batchMode, "mode", "", "execution mode: sequential or parallel (default from config)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "parallel worker count (default from config)")
	batchCmd.Flags().Float64Var(&batchDispatchDelay, "dispatch-delay", 0, "seconds between parallel dispatches")
	batchCmd.Flags().Float64Var(&batchMissionDelay, "mission-delay", 0, "seconds between sequential missions")
	batchCmd.Flags().BoolVar(&batchValidateOnly, "validate-only", false, "validate the area file and exit")
	batchCmd.Flags().BoolVar(&batchSimulateFires, "simulate-fires", false, "inject a simulated fire per scanned area")
	batchCmd.MarkFlagRequired("areas")

	rootCmd.AddCommand(batchCmd)
}
