package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/launch"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusCmd shows the state of every discovered component
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stack component status",
	Long: `Display the status of every discovered component: whether its
process is alive (from the pid file) and whether its health endpoint
responds.

Example:
  hubctl status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	registry := launch.NewRegistry(componentsDir(), log)
	if err := registry.Discover(); err != nil {
		return err
	}

	ordered, err := registry.Order()
	if err != nil {
		return err
	}

	fmt.Println("🔍 Stack Status")
	fmt.Printf("   Components: %s\n", componentsDir())
	fmt.Printf("   Run dir:    %s\n\n", runDir())

	running := 0

	for _, m := range ordered {
		pid, err := launch.ReadPIDFile(runDir(), m.Name)
		alive := err == nil && launch.ProcessAlive(pid)

		icon := "⚪"
		state := "stopped"
		if alive {
			icon = "✅"
			state = fmt.Sprintf("running (pid %d)", pid)
			running++
		}

		fmt.Printf("   %s %s [%s] %s\n", icon, m.Name, m.Role, state)

		if m.Description != "" {
			fmt.Printf("      %s\n", m.Description)
		}

		if alive && m.HealthCheck.Enabled() {
			if probeHealth(m.HealthCheck.URL(), m.HealthCheck.Timeout) {
				fmt.Printf("      Health: ✅ %s\n", m.HealthCheck.URL())
			} else {
				fmt.Printf("      Health: ❌ %s not responding\n", m.HealthCheck.URL())
			}
		}
	}

	fmt.Printf("\n%d/%d components running\n", running, len(ordered))
	return nil
}

func probeHealth(url string, timeout time.Duration) bool {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
