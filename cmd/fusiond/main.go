package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SignalFusion/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fusiond",
	Short: "Trading-signal fusion and adaptive decision engine",
	Long: `fusiond fuses signals from independent analysis modules into one
gated, sized trading decision per pair and adapts its acceptance
thresholds from realized outcomes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to the service config; empty uses defaults")
	rootCmd.AddCommand(serveCmd, decideCmd, retuneCmd)
}

// loadConfig reads --config with env overrides, or defaults when the flag is empty.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadWithEnv(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
