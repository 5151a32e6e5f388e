package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fireplane/internal/ground"
	"fireplane/pkg/api"
)

var (
	emergencyHost string
	emergencyPort int
)

var emergencyCmd = &cobra.Command{
	Use:   "emergency (abort|rtl|land|kill|status)",
	Short: "Send an emergency command directly to one drone agent",
	Long: `Command a single drone agent over HTTP, bypassing the batch pipeline.

  abort   cancel the mission and return to launch immediately
  rtl     controlled return to launch
  land    land at the current position
  kill    disarm motors NOW; the drone will fall if airborne
  status  probe the agent and print its state

kill asks for a typed confirmation on stdin and refuses anything but the
exact word KILL.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"abort", "rtl", "land", "kill", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		const target = "target"
		client := ground.NewClient(cfg.Network.Timeout(), log)
		client.Register(target, fmt.Sprintf("%s:%d", emergencyHost, emergencyPort))
		ctx := cmd.Context()

		switch args[0] {
		case "abort":
			if err := client.AbortMission(ctx, target); err != nil {
				return err
			}
			cmd.Println("abort acknowledged, drone returning to launch")
		case "rtl":
			if err := client.SendRTL(ctx, target, "operator emergency command"); err != nil {
				return err
			}
			cmd.Println("rtl acknowledged")
		case "land":
			if err := client.Land(ctx, target); err != nil {
				return err
			}
			cmd.Println("land acknowledged")
		case "kill":
			cmd.Printf("Disarm motors on %s:%d. The drone WILL FALL if airborne.\n", emergencyHost, emergencyPort)
			cmd.Print("Type KILL to confirm: ")
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			confirm := api.KillConfirmation(strings.TrimSpace(line))
			if err := client.Kill(ctx, target, confirm); err != nil {
				return err
			}
			cmd.Println("kill acknowledged, motors disarmed")
		case "status":
			if err := client.Heartbeat(ctx, target); err != nil {
				return fmt.Errorf("agent unreachable: %w", err)
			}
			status, err := client.Status(ctx, target)
			if err != nil {
				return err
			}
			cmd.Printf("%s  state=%s battery=%.1f%% armed=%t mode=%s task=%s\n",
				status.DroneID, status.State, status.Battery, status.Armed,
				status.FlightMode, status.CurrentTask)
			cmd.Printf("position  lat=%.6f lon=%.6f alt=%.1fm heading=%.0f speed=%.1fm/s\n",
				status.Position.Lat, status.Position.Lon, status.Position.Alt,
				status.Heading, status.Speed)
		default:
			return fmt.Errorf("unknown emergency command %q", args[0])
		}
		return nil
	},
}

func init() {
	emergencyCmd.Flags().StringVar(&emergencyHost, "host", "127.0.0.1", "drone agent host")
	emergencyCmd.Flags().IntVar(&emergencyPort, "port", 5000, "drone agent port")

	rootCmd.AddCommand(emergencyCmd)
}
