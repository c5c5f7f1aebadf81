package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/device"
	goble "github.com/srg/racelink/internal/device/go-ble"
	"github.com/srg/racelink/internal/statuslog"
	"github.com/srg/racelink/pkg/config"
	"github.com/srg/racelink/pkg/controller"
)

// RadioFactory creates the radio used by every command (can be overridden in tests)
var RadioFactory = func(logger *logrus.Logger) device.Radio {
	return goble.NewRadio(logger)
}

var (
	statusColor = color.New(color.FgCyan)
	frameColor  = color.New(color.FgGreen, color.Bold)
	errorColor  = color.New(color.FgRed)
)

// app bundles what a command needs to drive the controller.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctrl   *controller.Controller
	out    io.Writer
	errOut io.Writer
}

// newApp loads the configuration named by --config and builds a controller.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	ctrl, err := controller.New(RadioFactory(logger), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, ctrl: ctrl, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}, nil
}

// resolveTarget returns the device for address, or scans and picks the
// strongest candidate when address is empty.
func (a *app) resolveTarget(ctx context.Context, address string) (device.DiscoveredDevice, error) {
	if address != "" {
		return device.DiscoveredDevice{ID: address}, nil
	}

	devices, err := a.scan(ctx)
	a.flushLog()
	if err != nil {
		return device.DiscoveredDevice{}, err
	}
	if len(devices) == 0 {
		return device.DiscoveredDevice{}, ErrNoRaceController
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	return best, nil
}

// scan runs one discovery window behind a countdown.
func (a *app) scan(ctx context.Context) ([]device.DiscoveredDevice, error) {
	progress := NewCountdownPrinter(a.errOut, "Scanning for race controllers", a.cfg.ScanTimeout)
	progress.Start()
	devices, _, err := a.ctrl.Scan(ctx)
	progress.Stop()
	return devices, err
}

// flushLog prints every pending status line.
func (a *app) flushLog() {
	for _, line := range a.ctrl.Log().Drain() {
		printLine(a.out, line)
	}
}

func printLine(w io.Writer, line statuslog.Line) {
	ts := line.Time.Format("15:04:05.000")
	_, _ = statusColor.Fprintf(w, "%s ", ts)
	fmt.Fprintln(w, line.Text)
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context, out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nCtrl+C pressed, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
