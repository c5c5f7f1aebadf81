//go:build test

package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/testutils"
)

const testConfig = `
scan_timeout: 50ms
connect_timeout: 2s
auto_subscribe: true
control_characteristic: a1
commands:
  start: "02-01"
  stop: ""
`

// CommandTestSuite extends MockRadioSuite with command testing utilities.
// All cmd/racelink test suites should embed this instead of MockRadioSuite.
type CommandTestSuite struct {
	testutils.MockRadioSuite

	ConfigPath         string
	originalFactory    func(*logrus.Logger) device.Radio
	originalScanFormat string
	originalFramesOnly bool
	originalNoColor    bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.MockRadioSuite.SetupSuite()
	s.originalFactory = RadioFactory
	s.originalScanFormat = scanFormat
	s.originalFramesOnly = monitorFramesOnly
	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	RadioFactory = s.originalFactory
	scanFormat = s.originalScanFormat
	monitorFramesOnly = s.originalFramesOnly
	color.NoColor = s.originalNoColor
}

// SetupTest builds the radio and points RadioFactory at it.
// Suites that customize peripherals configure them first, then call this.
func (s *CommandTestSuite) SetupTest() {
	s.MockRadioSuite.SetupTest()

	radio := s.Radio
	RadioFactory = func(*logrus.Logger) device.Radio { return radio }

	scanFormat = "table"
	monitorFramesOnly = false
	monitorDuration = 0

	s.ConfigPath = s.WriteConfig(testConfig)
}

// WriteConfig stores a YAML config in a temp dir and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "racelink.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config write MUST succeed")
	return path
}

// ExecuteCommand runs the root command with args and the suite config,
// returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return executeCommand(rootCmd, append(args, "--config", s.ConfigPath)...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
