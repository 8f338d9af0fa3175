package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "lora-sim",
	Short: "Discrete-event LoRa network simulator with adversarial-bandit devices",
	Long: `lora-sim simulates a LoRaWAN-style network of devices that learn their
transmit action (spreading factor, frequency, power) via the EXP3 / EXP3-S
adversarial multi-armed bandit, against a gateway capture/collision model
driven by log-distance shadowing propagation.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, overrides the built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (debug-level) logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(topologyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
