package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
	"github.com/srg/racelink/pkg/controller"
)

// Command-level errors
var (
	// ErrNoRaceController is returned when no address is given and the scan
	// found no matching controller.
	ErrNoRaceController = errors.New("no race controller found")

	// ErrConnectionLost indicates the link dropped while monitoring.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an operation error into a single line suitable for
// the terminal, with a hint where the user can act on it.
func FormatUserError(err error) string {
	var (
		cerr *device.ConnectError
		werr *device.WriteError
		serr *device.SubscribeError
		derr *device.DiscoveryError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and retry"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth LE is not supported on this platform"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, ErrNoRaceController):
		return "no race controller found; make sure it is powered on and in range, or pass its address"
	case errors.Is(err, ErrConnectionLost):
		return "connection to the race controller was lost"
	case errors.Is(err, device.ErrNotConnected):
		return "not connected"
	case errors.Is(err, controller.ErrNoControlCharacteristic):
		return "no control characteristic configured; set control_characteristic in the config file"
	case errors.Is(err, telemetry.ErrCommandUndefined):
		return fmt.Sprintf("%v; add it under commands in the config file", err)
	case errors.As(err, &cerr):
		if cerr.Kind == device.DeviceUnreachable {
			return fmt.Sprintf("device %s is unreachable", cerr.Address)
		}
		return cerr.Error()
	case errors.As(err, &werr):
		if werr.Kind == device.NotFound {
			return fmt.Sprintf("characteristic %s not found or not writable", werr.Characteristic)
		}
		return werr.Error()
	case errors.As(err, &serr):
		return serr.Error()
	case errors.As(err, &derr):
		return derr.Error()
	default:
		return err.Error()
	}
}
