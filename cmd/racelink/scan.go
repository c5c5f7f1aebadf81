package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for race controllers",
	Long: `Scans for BLE peripherals whose advertised name matches one of the
configured name filters (Carrera, AppConnect by default) and lists them
strongest signal first.

Examples:
  racelink scan
  racelink scan --format json
  racelink scan --config race.yaml`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var scanFormat string

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.ctrl.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context(), a.out)
	defer cancel()

	devices, err := a.scan(ctx)
	if scanFormat == "table" {
		a.flushLog()
	}
	if err != nil {
		return err
	}

	sortByRSSI(devices)
	if scanFormat == "json" {
		return displayDevicesJSON(a.out, devices)
	}
	return displayDevicesTable(a.out, devices)
}

func sortByRSSI(devices []device.DiscoveredDevice) {
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].RSSI > devices[j].RSSI
	})
}

func displayDevicesTable(out io.Writer, devices []device.DiscoveredDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No race controllers discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, d := range devices {
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, d.ID, d.RSSI)
	}
	return w.Flush()
}

type deviceJSON struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
}

func displayDevicesJSON(out io.Writer, devices []device.DiscoveredDevice) error {
	rows := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, deviceJSON{Name: d.Name, Address: d.ID, RSSI: d.RSSI})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
