package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/launch"
	"github.com/FireFlamingo/GenAI-Hackathon/pkg/lifecycle"
	"github.com/FireFlamingo/GenAI-Hackathon/pkg/provision"
)

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolP("detach", "d", false, "Start the stack and return; stop later with 'hubctl down'")
	upCmd.Flags().IntP("metrics-port", "m", 0, "Serve Prometheus metrics on this port (0 disables)")
	upCmd.Flags().Duration("resync-interval", 10*time.Second, "How often running components are re-verified")

	viper.BindPFlag("stack.metrics_port", upCmd.Flags().Lookup("metrics-port"))
	viper.BindPFlag("stack.resync_interval", upCmd.Flags().Lookup("resync-interval"))
}

// upCmd starts the whole stack
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision and start the stack",
	Long: `Provision component environments and start every component in
dependency order. Backends start first; each must report ready before
its dependents launch. The frontend runs last and hubctl stays in the
foreground until it exits (or Ctrl-C), then stops the backends.

Example:
  hubctl up
  hubctl up --detach
  hubctl up --metrics-port 9090`,
	RunE: runUp,
}

func runUp(cmd *cobra.Command, args []string) error {
	detach, _ := cmd.Flags().GetBool("detach")
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := lifecycle.NewPrometheusMetrics("hubctl")

	provisioner := provision.New(
		provision.WithLogger(log),
		provision.WithMetrics(provision.NewPrometheusMetrics(metrics.Registry(), "hubctl")),
	)

	stack := launch.NewStack(componentsDir(), runDir(),
		launch.WithLogger(log),
		launch.WithMetrics(metrics),
		launch.WithProvisioner(provisioner),
		launch.WithResyncInterval(viper.GetDuration("stack.resync_interval")),
	)

	if port := viper.GetInt("stack.metrics_port"); port > 0 {
		go serveMetrics(port, metrics, log)
	}

	fmt.Printf("🚀 Starting stack (session %s)\n", stack.SessionID())

	if err := stack.Up(ctx); err != nil {
		fmt.Printf("❌ Stack failed to start: %v\n", err)
		if suggestion := launch.GetSuggestion(err); suggestion != "" {
			fmt.Printf("\n💡 %s\n", suggestion)
		}
		return err
	}

	fmt.Println("✅ Stack is up")
	for _, m := range stack.Registry().List() {
		fmt.Printf("   • %s (%s)\n", m.Name, m.Role)
	}

	if detach {
		fmt.Printf("\nStack left running in the background. Logs: %s\n", runDir())
		fmt.Println("Stop with: hubctl down")
		return nil
	}

	fmt.Println("\nPress Ctrl-C to stop the stack")

	if err := stack.Wait(ctx); err != nil && ctx.Err() == nil {
		log.Warn("stack wait ended with error", "err", err)
	}

	fmt.Println("\n🛑 Stopping stack...")

	downCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := stack.Down(downCtx); err != nil {
		fmt.Printf("⚠️  Some components did not stop cleanly: %v\n", err)
		return err
	}

	fmt.Println("✅ Stack stopped")
	return nil
}

func serveMetrics(port int, metrics *lifecycle.PrometheusMetrics, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	log.Info("serving metrics", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}
