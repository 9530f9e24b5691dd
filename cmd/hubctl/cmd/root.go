// Package cmd provides the CLI commands for hubctl
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command for hubctl
var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Manage the local application stack",
	Long: `hubctl provisions component environments and manages the local
application stack: backends start first and must report ready before
the frontend launches.

Components are discovered from a components directory where each
component declares itself with a component.yaml manifest.

Example:
  hubctl up
  hubctl status
  hubctl logs backend -f
  hubctl down`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./stack.yaml)")
	rootCmd.PersistentFlags().StringP("components-dir", "C", "components", "Directory containing component manifests")
	rootCmd.PersistentFlags().String("run-dir", defaultRunDir(), "Directory for pid and log files")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	viper.BindPFlag("stack.components_dir", rootCmd.PersistentFlags().Lookup("components-dir"))
	viper.BindPFlag("stack.run_dir", rootCmd.PersistentFlags().Lookup("run-dir"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in the config file and environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("stack")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".hub"))
		}
	}

	viper.SetEnvPrefix("HUB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setupLogging configures the default slog logger from viper settings
func setupLogging() {
	var level slog.Level
	switch viper.GetString("log.level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if viper.GetString("log.format") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func defaultRunDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hub/run"
	}
	return filepath.Join(home, ".hub", "run")
}

func componentsDir() string {
	return viper.GetString("stack.components_dir")
}

func runDir() string {
	return viper.GetString("stack.run_dir")
}
