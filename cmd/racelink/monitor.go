package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/bledb"
	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
	"github.com/srg/racelink/pkg/controller"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [address]",
	Short: "Connect and stream race telemetry",
	Long: `Connects to a race controller, subscribes to every notifying
characteristic and prints the status log with decoded car telemetry until
Ctrl+C. Without an address the strongest matching controller is used.

Examples:
  racelink monitor
  racelink monitor AA:BB:CC:DD:EE:01
  racelink monitor --frames --duration 5m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorFramesOnly bool
	monitorDuration   time.Duration
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorFramesOnly, "frames", false, "Print decoded frames only, without status lines")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.ctrl.Close()

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), a.out)
	defer cancel()

	target, err := a.resolveTarget(ctx, argAt(args, 0))
	if err != nil {
		return err
	}

	if _, err := a.ctrl.Connect(ctx, target); err != nil {
		a.flushLog()
		return err
	}
	if !a.cfg.AutoSubscribe {
		if _, err := a.ctrl.SubscribeAll(ctx); err != nil {
			a.flushLog()
			return err
		}
	}

	if !monitorFramesOnly {
		a.flushLog()
		if err := displayCharacteristicsTable(a.out, a.ctrl.Characteristics()); err != nil {
			return err
		}
	}

	if monitorDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, monitorDuration)
		defer stop()
	}

	err = a.stream(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if _, derr := a.ctrl.Disconnect(); derr != nil && err == nil {
		err = derr
	}
	if !monitorFramesOnly {
		a.flushLog()
	}
	return err
}

// stream prints status lines or frames until ctx ends or the link drops.
func (a *app) stream(ctx context.Context) error {
	if !monitorFramesOnly {
		a.flushLog()
	}
	frames := a.ctrl.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-a.ctrl.Log().Ready():
			if monitorFramesOnly {
				a.ctrl.Log().Drain()
			} else {
				a.flushLog()
			}

		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if monitorFramesOnly {
				printFrame(a, f)
			}
		}

		if a.ctrl.State() != controller.Connected {
			if !monitorFramesOnly {
				a.flushLog()
			}
			return ErrConnectionLost
		}
	}
}

// displayCharacteristicsTable lists the discovered characteristics with their
// assigned names, when known.
func displayCharacteristicsTable(out io.Writer, chars []device.CharacteristicDescriptor) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCHARACTERISTIC\tNAME\tPROPERTIES")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, c := range chars {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			displayUUID(c.ServiceUUID, bledb.LookupService(c.ServiceUUID)),
			c.UUID,
			orDash(bledb.LookupCharacteristic(c.UUID)),
			c.Properties)
	}
	return w.Flush()
}

func displayUUID(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return fmt.Sprintf("%s (%s)", uuid, name)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printFrame(a *app, f telemetry.Frame) {
	_, _ = frameColor.Fprintf(a.out, "%s\n", f)
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func printStatus(a *app, status string, err error) {
	if err != nil {
		_, _ = errorColor.Fprintln(a.out, status)
		return
	}
	fmt.Fprintln(a.out, status)
}
