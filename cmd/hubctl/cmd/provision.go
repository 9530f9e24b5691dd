package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/launch"
)

func init() {
	rootCmd.AddCommand(provisionCmd)
}

// provisionCmd builds component environments without starting anything
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision component environments",
	Long: `Create the isolated dependency environment of every discovered
component without starting any processes. Environments that already
exist are skipped, so this is safe to run repeatedly.

Example:
  hubctl provision`,
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack := launch.NewStack(componentsDir(), runDir(), launch.WithLogger(log))

	fmt.Println("📦 Provisioning component environments...")

	if err := stack.Provision(ctx); err != nil {
		fmt.Printf("❌ Provisioning failed: %v\n", err)
		if suggestion := launch.GetSuggestion(err); suggestion != "" {
			fmt.Printf("\n💡 %s\n", suggestion)
		}
		return err
	}

	fmt.Println("✅ All environments ready")
	return nil
}
