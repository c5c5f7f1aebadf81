package main

import (
	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/telemetry"
)

// raceCmd represents the race command
var raceCmd = &cobra.Command{
	Use:   "race <start|stop> [address]",
	Short: "Send a race command to the controller",
	Long: `Connects to the race controller and writes the configured payload of the
command to the control characteristic. Payloads are taken from the commands
section of the config file; nothing is sent for a command without one.

Examples:
  racelink race start --config race.yaml
  racelink race stop AA:BB:CC:DD:EE:01 --config race.yaml`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"start", "stop"},
	RunE:      runRace,
}

func runRace(cmd *cobra.Command, args []string) error {
	raceCommand, err := telemetry.ParseCommand(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.ctrl.Close()

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), a.out)
	defer cancel()

	target, err := a.resolveTarget(ctx, argAt(args, 1))
	if err != nil {
		return err
	}
	if _, err := a.ctrl.Connect(ctx, target); err != nil {
		a.flushLog()
		return err
	}

	status, err := a.ctrl.SendCommand(ctx, raceCommand)
	_, _ = a.ctrl.Disconnect()
	a.flushLog()
	printStatus(a, status, err)
	return err
}
