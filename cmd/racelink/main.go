package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "racelink",
	Short: "Carrera race controller over Bluetooth Low Energy",
	Long: `Command-line client for Carrera slot-car race controllers that provides:

- Scan for race controllers advertising over BLE
- Connect and stream decoded car telemetry (fuel, laps, position)
- Write raw payloads to characteristics
- Send race start and stop commands

Command payloads and the telemetry layout are read from the --config file.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(raceCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); silent by default")

	rootCmd.SetVersionTemplate(fmt.Sprintf("racelink %s (commit %s, built %s)\n", formatVersion(version), commit, date))
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
