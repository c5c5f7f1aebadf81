//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/racelink/internal/statuslog"
	"github.com/stretchr/testify/suite"
)

// DefaultAddress is the address of the default race controller peripheral.
const DefaultAddress = "AA:BB:CC:DD:EE:01"

// MockRadioSuite is a reusable testify suite with a mock radio and a mock
// race controller peripheral.
//
// Basic usage (default Carrera peripheral):
//
//	type SessionSuite struct {
//	    testutils.MockRadioSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom profile usage:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral("11:22:33:44:55:66").
//	        WithName("AppConnect").
//	        WithService("39df").
//	        WithCharacteristic("39e0", "notify")
//
//	    s.MockRadioSuite.SetupTest() // call parent last to apply configuration
//	}
type MockRadioSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	Log         *statuslog.Log
	TestTimeout time.Duration

	// Radio is rebuilt for every test from RadioBuilder.
	Radio       *MockRadio
	Peripherals map[string]*MockPeripheral

	RadioBuilder *RadioBuilder
	built        bool
}

// SetupSuite initializes the shared helpers.
func (s *MockRadioSuite) SetupSuite() {
	s.TestTimeout = 2 * time.Second
}

// SetupTest builds the radio. Called before each test method.
func (s *MockRadioSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Log = s.Helper.Log

	if s.RadioBuilder == nil {
		s.RadioBuilder = NewRadioBuilder().WithPeripheral(DefaultPeripheral(DefaultAddress))
	}
	s.Radio, s.Peripherals = s.RadioBuilder.Build()
	s.built = true
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the builder so the next test starts clean.
func (s *MockRadioSuite) TearDownTest() {
	s.RadioBuilder = nil
	s.built = false
	s.Radio = nil
	s.Peripherals = nil
}

// WithPeripheral adds a peripheral to the radio and returns its builder.
// Call before MockRadioSuite.SetupTest; calling it after the radio was built
// starts a fresh configuration that the next SetupTest applies.
func (s *MockRadioSuite) WithPeripheral(address string) *PeripheralBuilder {
	s.resetBuilder()
	pb := NewPeripheralBuilder(address)
	s.RadioBuilder.WithPeripheral(pb)
	return pb
}

// WithRadio returns the radio builder for advertisements and radio failures.
// Call before MockRadioSuite.SetupTest.
func (s *MockRadioSuite) WithRadio() *RadioBuilder {
	s.resetBuilder()
	return s.RadioBuilder
}

func (s *MockRadioSuite) resetBuilder() {
	if s.RadioBuilder == nil || s.built {
		s.RadioBuilder = NewRadioBuilder()
		s.built = false
	}
}

// Peripheral returns the mock peripheral at address.
func (s *MockRadioSuite) Peripheral(address string) *MockPeripheral {
	p, ok := s.Peripherals[address]
	s.Require().True(ok, "no mock peripheral at %s", address)
	return p
}

// DefaultPeripheral returns the builder of a race controller exposing a
// notify+write characteristic "a1" and a read-only characteristic "b2".
func DefaultPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address).FromJSON(`
	{
		"name": "Carrera-RX9",
		"rssi": -48,
		"services": [
			{
				"uuid": "39df",
				"characteristics": [
					{ "uuid": "a1", "properties": "notify,write" },
					{ "uuid": "b2", "properties": "read" }
				]
			}
		]
	}`)
}
