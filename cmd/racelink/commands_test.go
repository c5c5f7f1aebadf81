//go:build test

package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/racelink/internal/bledb"
	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
	"github.com/srg/racelink/internal/testutils"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}

func (s *CommandsTestSuite) SetupTest() {
	s.WithRadio().
		WithPeripheral(testutils.DefaultPeripheral(testutils.DefaultAddress)).
		WithAdvertisements(&testutils.MockAdvertisement{Name: "OtherDevice", Address: "AA:BB:CC:DD:EE:02"})
	s.CommandTestSuite.SetupTest()
}

// notifyWhenSubscribed pushes payload once the characteristic has notifications enabled.
func (s *CommandsTestSuite) notifyWhenSubscribed(c *testutils.MockCharacteristic, payload []byte) {
	go func() {
		deadline := time.Now().Add(s.TestTimeout)
		for time.Now().Before(deadline) {
			if c.Notify(payload) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func (s *CommandsTestSuite) TestScanListsMatchingControllers() {
	out, err := s.ExecuteCommand("scan")
	s.Require().NoError(err)

	s.Contains(out, "Scan finished – 1 candidates found.")
	s.Contains(out, "Carrera-RX9")
	s.Contains(out, testutils.DefaultAddress)
	s.Contains(out, "-48 dBm")
	s.NotContains(out, "OtherDevice")
}

func (s *CommandsTestSuite) TestScanJSON() {
	out, err := s.ExecuteCommand("scan", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Strict().Assert(out, `[
		{ "name": "Carrera-RX9", "address": "AA:BB:CC:DD:EE:01", "rssi": -48 }
	]`)
}

func (s *CommandsTestSuite) TestScanRejectsUnknownFormat() {
	_, err := s.ExecuteCommand("scan", "--format", "xml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format")
	s.Radio.AssertNotCalled(s.T(), "Scan", mock.Anything, mock.Anything)
}

func (s *CommandsTestSuite) TestWriteSendsPayload() {
	out, err := s.ExecuteCommand("write", testutils.DefaultAddress, "A1", "02 50 03 01")
	s.Require().NoError(err)

	s.Contains(out, "Write a1: Success")
	char := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	char.AssertCalled(s.T(), "Write", []byte{0x02, 0x50, 0x03, 0x01})
}

func (s *CommandsTestSuite) TestWriteNotWritable() {
	out, err := s.ExecuteCommand("write", testutils.DefaultAddress, "b2", "01")
	s.Require().ErrorIs(err, device.ErrWriteNotFound)
	s.Contains(out, "Write characteristic not found or not writable.")
}

func (s *CommandsTestSuite) TestWriteInvalidHexDoesNotDial() {
	_, err := s.ExecuteCommand("write", testutils.DefaultAddress, "a1", "zz")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid hex payload")
	s.Radio.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *CommandsTestSuite) TestWriteInvalidCharacteristicDoesNotDial() {
	_, err := s.ExecuteCommand("write", testutils.DefaultAddress, "output", "01")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid characteristic")
	s.Radio.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *CommandsTestSuite) TestWriteAcceptsBracedCharacteristic() {
	out, err := s.ExecuteCommand("write", testutils.DefaultAddress, "{0xA1}", "01")
	s.Require().NoError(err)
	s.Contains(out, "Write a1: Success")
}

func (s *CommandsTestSuite) TestWriteUnreachable() {
	_, err := s.ExecuteCommand("write", "AA:BB:CC:DD:EE:99", "a1", "01")
	s.Require().ErrorIs(err, device.ErrDeviceUnreachable)
	s.Equal("device AA:BB:CC:DD:EE:99 is unreachable", FormatUserError(err))
}

func (s *CommandsTestSuite) TestRaceStartScansAndSends() {
	out, err := s.ExecuteCommand("race", "start")
	s.Require().NoError(err)

	s.Contains(out, "Connected to Carrera-RX9")
	s.Contains(out, "Race start sent")
	char := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	char.AssertCalled(s.T(), "Write", []byte{0x02, 0x01})
}

func (s *CommandsTestSuite) TestRaceStopUndefined() {
	out, err := s.ExecuteCommand("race", "stop", testutils.DefaultAddress)
	s.Require().ErrorIs(err, telemetry.ErrCommandUndefined)
	s.Contains(out, "Race stop failed")

	char := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	char.AssertNotCalled(s.T(), "Write", mock.Anything)
}

func (s *CommandsTestSuite) TestRaceUnknownCommand() {
	_, err := s.ExecuteCommand("race", "pause")
	s.Require().Error(err)
	s.Contains(err.Error(), "must be start or stop")
}

func (s *CommandsTestSuite) TestMonitorStreamsFrames() {
	char := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	s.notifyWhenSubscribed(char, []byte{0x01, 0x50, 0x03, 0x02})

	out, err := s.ExecuteCommand("monitor", testutils.DefaultAddress, "--duration", "300ms")
	s.Require().NoError(err)

	s.Contains(out, "Connected to Carrera-RX9")
	s.Contains(out, "CHARACTERISTIC")
	s.Contains(out, "a1")
	s.Contains(out, "Notify enabled: a1 – Success")
	s.Contains(out, "Notify a1: 01-50-03-02")
	s.Contains(out, "Car 1: Fuel=80, Laps=3, Pos=2")
	s.Contains(out, "Disconnected from Carrera-RX9")
}

func (s *CommandsTestSuite) TestMonitorNamesControlUnitCharacteristics() {
	s.WithRadio().WithPeripheral(testutils.NewPeripheralBuilder(testutils.DefaultAddress).
		WithName("Carrera-RX9").
		WithService("39DF7777-B1B4-B90B-57F1-7144AE4E4A6A").
		WithCharacteristic("39DF9999-B1B4-B90B-57F1-7144AE4E4A6A", "notify").
		WithCharacteristic("39DF8888-B1B4-B90B-57F1-7144AE4E4A6A", "write"))
	s.CommandTestSuite.SetupTest()

	out, err := s.ExecuteCommand("monitor", testutils.DefaultAddress, "--duration", "100ms")
	s.Require().NoError(err)

	s.Contains(out, bledb.CarreraService+" (Carrera Control Unit)")
	s.Contains(out, "Control Unit Notification")
	s.Contains(out, "Control Unit Output")
}

func (s *CommandsTestSuite) TestMonitorFramesOnly() {
	char := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	s.notifyWhenSubscribed(char, []byte{0x04, 0x10, 0x07, 0x01})

	out, err := s.ExecuteCommand("monitor", testutils.DefaultAddress, "--frames", "--duration", "300ms")
	s.Require().NoError(err)

	s.Contains(out, "Car 4: Fuel=16, Laps=7, Pos=1")
	s.NotContains(out, "Notify enabled")
	s.NotContains(out, "CHARACTERISTIC")
}

func (s *CommandsTestSuite) TestMonitorLinkLoss() {
	p := s.Peripheral(testutils.DefaultAddress)
	char := p.Characteristic("39df", "a1")
	go func() {
		deadline := time.Now().Add(s.TestTimeout)
		for time.Now().Before(deadline) && !char.Subscribed() {
			time.Sleep(5 * time.Millisecond)
		}
		// let Connect finish before the link drops
		time.Sleep(100 * time.Millisecond)
		p.DropLink()
	}()

	out, err := s.ExecuteCommand("monitor", testutils.DefaultAddress, "--duration", "2s")
	s.Require().True(errors.Is(err, ErrConnectionLost), "expected connection lost, got %v", err)
	s.Contains(out, "Connection lost: Carrera-RX9")
}

func (s *CommandsTestSuite) TestMonitorNoControllerFound() {
	s.WithRadio().WithAdvertisements(&testutils.MockAdvertisement{Name: "OtherDevice", Address: "AA:BB:CC:DD:EE:02"})
	s.CommandTestSuite.SetupTest()

	_, err := s.ExecuteCommand("monitor")
	s.Require().ErrorIs(err, ErrNoRaceController)
}

func (s *CommandsTestSuite) TestInvalidConfig() {
	s.ConfigPath = s.WriteConfig("scan_timeout: -1s\n")

	_, err := s.ExecuteCommand("scan")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid config")
}
