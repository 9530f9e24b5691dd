package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/launch"
)

func init() {
	rootCmd.AddCommand(downCmd)

	downCmd.Flags().Duration("grace-period", 10*time.Second, "Time to wait after SIGTERM before SIGKILL")
}

// downCmd stops a detached stack via its pid files
var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop a running stack",
	Long: `Stop all stack components started by 'hubctl up --detach'.

Components are stopped in reverse launch order (frontend first) using
the pid files in the run directory. Each process gets SIGTERM, then
SIGKILL after the grace period.

Example:
  hubctl down
  hubctl down --grace-period 30s`,
	RunE: runDown,
}

func runDown(cmd *cobra.Command, args []string) error {
	grace, _ := cmd.Flags().GetDuration("grace-period")
	log := slog.Default()

	registry := launch.NewRegistry(componentsDir(), log)
	if err := registry.Discover(); err != nil {
		return err
	}

	ordered, err := registry.Order()
	if err != nil {
		return err
	}

	fmt.Println("🛑 Stopping stack...")

	stopped := 0
	var lastErr error

	for i := len(ordered) - 1; i >= 0; i-- {
		m := ordered[i]

		pid, err := launch.ReadPIDFile(runDir(), m.Name)
		if err != nil {
			fmt.Printf("   • %s: not running\n", m.Name)
			continue
		}

		if !launch.ProcessAlive(pid) {
			fmt.Printf("   • %s: not running (stale pid file removed)\n", m.Name)
			launch.RemovePIDFile(runDir(), m.Name)
			continue
		}

		g := grace
		if m.GracePeriod > 0 && !cmd.Flags().Changed("grace-period") {
			g = m.GracePeriod
		}

		if err := launch.StopByPIDFile(runDir(), m.Name, g); err != nil {
			fmt.Printf("   ❌ %s: %v\n", m.Name, err)
			lastErr = err
			continue
		}

		fmt.Printf("   ✅ %s stopped (pid %d)\n", m.Name, pid)
		stopped++
	}

	if stopped == 0 && lastErr == nil {
		fmt.Println("Nothing to stop")
		return nil
	}

	return lastErr
}
