// Command pendantd is the pendant's on-device daemon. It advertises the
// pendant GATT profile, streams microphone audio to the connected phone,
// classifies button gestures and reports the battery level.
//
// Usage:
//
//	pendantd run [--config path]
//	pendantd check-config [--config path]
//	pendantd init-config
//	pendantd version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pendantd",
	Short: "Wearable audio pendant daemon",
	Long: `pendantd runs the pendant's BLE communication core:

- GATT audio, button, DFU, battery and device information services
- microphone capture streamed as fragmented notifications
- button gesture classification (single, double and long tap)
- DFU trigger and periodic battery reporting`,
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon until interrupted",
	RunE:  runDaemon,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then print it",
	RunE:  runCheckConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration file if none exists",
	RunE:  runInitConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pendantd %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.config/pendant/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
