package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <address> <uuid> <hex>",
	Short: "Write a raw payload to a characteristic",
	Long: `Connects to the device and writes the hex payload, with response, to the
first writable characteristic with the UUID in any service.

Examples:
  racelink write AA:BB:CC:DD:EE:01 a1 02500301
  racelink write AA:BB:CC:DD:EE:01 a1 "02 50 03 01"`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]
	uuids, err := device.ValidateUUID(args[1])
	if err != nil {
		return fmt.Errorf("invalid characteristic: %w", err)
	}
	uuid := uuids[0]

	payload, err := telemetry.ParseHex(args[2])
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.ctrl.Close()

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), a.out)
	defer cancel()

	target, err := a.resolveTarget(ctx, address)
	if err != nil {
		return err
	}
	if _, err := a.ctrl.Connect(ctx, target); err != nil {
		a.flushLog()
		return err
	}

	status, err := a.ctrl.Write(ctx, uuid, payload)
	_, _ = a.ctrl.Disconnect()
	a.flushLog()
	printStatus(a, status, err)
	return err
}
