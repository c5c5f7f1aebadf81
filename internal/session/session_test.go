//go:build test

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
	"github.com/srg/racelink/internal/testutils"
)

var (
	a1Key = device.CharacteristicKey("39df", "a1")
	b2Key = device.CharacteristicKey("39df", "b2")
)

type SessionTestSuite struct {
	testutils.MockRadioSuite

	mu     sync.Mutex
	frames []telemetry.Frame
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.MockRadioSuite.SetupTest()
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

func (s *SessionTestSuite) deps() Deps {
	return Deps{
		Log:    s.Log,
		Logger: s.Logger,
		OnFrame: func(f telemetry.Frame) {
			s.mu.Lock()
			s.frames = append(s.frames, f)
			s.mu.Unlock()
		},
	}
}

func (s *SessionTestSuite) collected() []telemetry.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Frame(nil), s.frames...)
}

func (s *SessionTestSuite) connect(address string) *Session {
	sess, err := Connect(context.Background(), s.Radio, device.DiscoveredDevice{ID: address, Name: "Carrera-RX9"}, s.deps())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = sess.Disconnect() })
	return sess
}

func (s *SessionTestSuite) descriptor(sess *Session, key string) device.CharacteristicDescriptor {
	for _, d := range sess.Characteristics() {
		if d.Key() == key {
			return d
		}
	}
	s.FailNow("descriptor not found", key)
	return device.CharacteristicDescriptor{}
}

func (s *SessionTestSuite) TestConnectBuildsDescriptorTable() {
	sess := s.connect(testutils.DefaultAddress)

	testutils.NewJSONAsserter(s.T()).AssertCharacteristics(sess.Characteristics(), `[
		{"service": "39df", "uuid": "a1", "properties": "Write, Notify", "value": ""},
		{"service": "39df", "uuid": "b2", "properties": "Read", "value": ""}
	]`)
	s.Equal("Carrera-RX9", sess.Name())
	s.Equal(testutils.DefaultAddress, sess.Address())
	s.Equal(Unsubscribed, sess.SubscriptionState(a1Key))
}

func (s *SessionTestSuite) TestConnectWithoutHandleIsUnreachable() {
	_, err := Connect(context.Background(), s.Radio, device.DiscoveredDevice{ID: "00:00:00:00:00:00"}, s.deps())

	s.ErrorIs(err, device.ErrDeviceUnreachable)
	var cerr *device.ConnectError
	s.Require().ErrorAs(err, &cerr)
	s.Equal("00:00:00:00:00:00", cerr.Address)
}

func (s *SessionTestSuite) TestConnectHonorsCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, s.Radio, device.DiscoveredDevice{ID: testutils.DefaultAddress}, s.deps())

	s.ErrorIs(err, context.Canceled)
	s.Peripheral(testutils.DefaultAddress).AssertCalled(s.T(), "Close")
}

func (s *SessionTestSuite) TestSubscribeRejectsNonNotifyWithoutDeviceWrite() {
	sess := s.connect(testutils.DefaultAddress)

	err := sess.Subscribe(context.Background(), s.descriptor(sess, b2Key), nil)

	s.ErrorIs(err, device.ErrNotifyUnsupported)
	b2 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "b2")
	b2.AssertNotCalled(s.T(), "EnableNotifications")
	s.Equal(Unsubscribed, sess.SubscriptionState(b2Key))
}

func (s *SessionTestSuite) TestSubscribeUnknownCharacteristic() {
	sess := s.connect(testutils.DefaultAddress)

	err := sess.Subscribe(context.Background(), device.CharacteristicDescriptor{ServiceUUID: "39df", UUID: "ffff", Properties: device.PropNotify}, nil)

	s.ErrorIs(err, device.ErrUnknownCharacteristic)
}

func (s *SessionTestSuite) TestSubscribeDeliversDecodedFrames() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")

	var notes []device.Notification
	var notesMu sync.Mutex
	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), func(n device.Notification) {
		notesMu.Lock()
		notes = append(notes, n)
		notesMu.Unlock()
	}))
	s.Equal(Subscribed, sess.SubscriptionState(a1Key))

	s.True(a1.Notify([]byte{2, 80, 3, 1}))

	s.Require().Eventually(func() bool { return len(s.collected()) == 1 }, s.TestTimeout, 5*time.Millisecond)
	s.Equal(telemetry.Frame{CarID: 2, FuelLevel: 80, LapCount: 3, Position: 1}, s.collected()[0])

	s.Require().Eventually(func() bool {
		return s.descriptor(sess, a1Key).LastRawValueHex == "02-50-03-01"
	}, s.TestTimeout, 5*time.Millisecond)

	lines, ok := s.Helper.WaitForLine("Notify a1: 02-50-03-01", s.TestTimeout)
	s.True(ok, "raw hex line expected, got %v", lines)
	s.Contains(lines, "Notify enabled: a1 – Success")

	notesMu.Lock()
	defer notesMu.Unlock()
	s.Require().Len(notes, 1)
	s.Equal("a1", notes[0].CharacteristicUUID)
	s.Equal("39df", notes[0].ServiceUUID)
}

func (s *SessionTestSuite) TestShortNotificationProducesNoFrame() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil))

	a1.Notify([]byte{2, 80, 3})

	_, ok := s.Helper.WaitForLine("Notify a1: 02-50-03", s.TestTimeout)
	s.True(ok)
	s.Empty(s.collected())
}

func (s *SessionTestSuite) TestSubscribeIsIdempotent() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	desc := s.descriptor(sess, a1Key)

	first := make(chan device.Notification, 4)
	second := make(chan device.Notification, 4)
	s.Require().NoError(sess.Subscribe(context.Background(), desc, func(n device.Notification) { first <- n }))
	s.Require().NoError(sess.Subscribe(context.Background(), desc, func(n device.Notification) { second <- n }))

	a1.AssertNumberOfCalls(s.T(), "EnableNotifications", 1)

	a1.Notify([]byte{1, 2, 3, 4})
	select {
	case <-second:
	case <-time.After(s.TestTimeout):
		s.FailNow("replacement callback not invoked")
	}
	s.Empty(first)
}

func (s *SessionTestSuite) TestSubscribeRejectedByDevice() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithName("Carrera-RX9").
		WithService("39df").
		WithCharacteristic("a1", "notify").
		WithEnableError("a1", errors.New("GATT error 0x03"))
	s.MockRadioSuite.SetupTest()

	sess := s.connect(testutils.DefaultAddress)
	err := sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil)

	s.ErrorIs(err, device.ErrWriteRejected)
	s.ErrorContains(err, "GATT error 0x03")
	s.Equal(Unsubscribed, sess.SubscriptionState(a1Key))

	_, ok := s.Helper.WaitForLine("Notify enabled: a1 – GATT error 0x03", s.TestTimeout)
	s.True(ok)
}

func (s *SessionTestSuite) TestCancelledSubscribeRollsBack() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")

	release := make(chan time.Time)
	disabled := make(chan struct{})
	a1.Expect()
	a1.On("EnableNotifications").WaitUntil(release).Return(nil).Once()
	a1.On("DisableNotifications").Run(func(mock.Arguments) { close(disabled) }).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := sess.Subscribe(ctx, s.descriptor(sess, a1Key), nil)
	s.ErrorIs(err, context.Canceled)

	close(release)
	select {
	case <-disabled:
	case <-time.After(s.TestTimeout):
		s.FailNow("late enable was not rolled back")
	}
	s.Eventually(func() bool { return sess.SubscriptionState(a1Key) == Unsubscribed }, s.TestTimeout, 5*time.Millisecond)
	s.False(a1.Notify([]byte{1, 2, 3, 4}))
}

func (s *SessionTestSuite) TestResubscribeWaitsForRollbackOfCancelledSubscribe() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")

	release := make(chan time.Time)
	disabled := make(chan struct{})
	a1.Expect()
	a1.On("EnableNotifications").WaitUntil(release).Return(nil).Once()
	a1.On("DisableNotifications").Run(func(mock.Arguments) { close(disabled) }).Return(nil).Once()
	a1.On("EnableNotifications").Return(nil)
	a1.On("DisableNotifications").Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	s.ErrorIs(sess.Subscribe(ctx, s.descriptor(sess, a1Key), nil), context.Canceled)

	// the cancelled enable is still in flight
	s.Equal(Subscribing, sess.SubscriptionState(a1Key))
	err := sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil)
	s.ErrorIs(err, ErrSubscribeInProgress)

	close(release)
	select {
	case <-disabled:
	case <-time.After(s.TestTimeout):
		s.FailNow("late enable was not rolled back")
	}
	s.Eventually(func() bool { return sess.SubscriptionState(a1Key) == Unsubscribed }, s.TestTimeout, 5*time.Millisecond)

	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil))
	s.Equal(Subscribed, sess.SubscriptionState(a1Key))
	s.True(a1.Subscribed(), "notifications MUST stay enabled on the device")
	s.True(a1.Notify([]byte{2, 80, 3, 1}))
	s.Eventually(func() bool { return len(s.collected()) == 1 }, s.TestTimeout, 5*time.Millisecond)
}

func (s *SessionTestSuite) TestSubscribeAllCountsNotifyCharacteristics() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithService("39df").
		WithCharacteristic("a1", "notify,write").
		WithCharacteristic("b2", "read").
		WithService("39e0").
		WithCharacteristic("c3", "notify").
		WithCharacteristic("d4", "indicate")
	s.MockRadioSuite.SetupTest()

	sess := s.connect(testutils.DefaultAddress)
	count, err := sess.SubscribeAll(context.Background(), nil)

	s.NoError(err)
	s.Equal(2, count)
	s.Equal(Subscribed, sess.SubscriptionState(device.CharacteristicKey("39e0", "c3")))
	s.Equal(Unsubscribed, sess.SubscriptionState(device.CharacteristicKey("39e0", "d4")))
}

func (s *SessionTestSuite) TestSkipsServiceWithUnreadableCharacteristics() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithService("1800").
		WithCharacteristic("2a00", "read").
		WithCharacteristicsError(errors.New("access denied")).
		WithService("39df").
		WithCharacteristic("a1", "notify")
	s.MockRadioSuite.SetupTest()

	sess := s.connect(testutils.DefaultAddress)

	chars := sess.Characteristics()
	s.Require().Len(chars, 1)
	s.Equal("a1", chars[0].UUID)
	s.Contains(s.Helper.Lines(), "Characteristics not readable for service 1800: access denied")
}

func (s *SessionTestSuite) TestServiceEnumerationFailureReleasesTransport() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithServicesError(errors.New("unreachable"))
	s.MockRadioSuite.SetupTest()

	_, err := Connect(context.Background(), s.Radio, device.DiscoveredDevice{ID: testutils.DefaultAddress}, s.deps())

	s.ErrorIs(err, device.ErrServiceEnumerationFailed)
	s.Peripheral(testutils.DefaultAddress).AssertCalled(s.T(), "Close")
	s.Contains(s.Helper.Lines(), "Services not readable: unreachable")
}

func (s *SessionTestSuite) TestWriteUsesWritableCharacteristic() {
	sess := s.connect(testutils.DefaultAddress)

	s.NoError(sess.Write(context.Background(), "A1", []byte{0x01}))

	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")
	a1.AssertCalled(s.T(), "Write", []byte{0x01})
}

func (s *SessionTestSuite) TestWriteNotFoundWhenOnlyNonWritableMatches() {
	sess := s.connect(testutils.DefaultAddress)

	err := sess.Write(context.Background(), "b2", []byte{0x01})

	s.ErrorIs(err, device.ErrWriteNotFound)
	b2 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "b2")
	b2.AssertNotCalled(s.T(), "Write", mock.Anything)
}

func (s *SessionTestSuite) TestWritePicksWritableAmongSameUUID() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithService("39df").
		WithCharacteristic("c3", "read").
		WithService("39e0").
		WithCharacteristic("c3", "write")
	s.MockRadioSuite.SetupTest()

	sess := s.connect(testutils.DefaultAddress)
	s.NoError(sess.Write(context.Background(), "c3", []byte{0x02}))

	p := s.Peripheral(testutils.DefaultAddress)
	p.Characteristic("39df", "c3").AssertNotCalled(s.T(), "Write", mock.Anything)
	p.Characteristic("39e0", "c3").AssertCalled(s.T(), "Write", []byte{0x02})
}

func (s *SessionTestSuite) TestWriteRejectedByDevice() {
	s.WithPeripheral(testutils.DefaultAddress).
		WithService("39df").
		WithCharacteristic("a1", "write").
		WithWriteError("a1", errors.New("GATT error 0x0d"))
	s.MockRadioSuite.SetupTest()

	sess := s.connect(testutils.DefaultAddress)
	err := sess.Write(context.Background(), "a1", []byte{0x01})

	s.ErrorIs(err, device.ErrWriteFailed)
	s.ErrorContains(err, "GATT error 0x0d")
}

func (s *SessionTestSuite) TestCancelledWriteDoesNotReachDevice() {
	sess := s.connect(testutils.DefaultAddress)
	p := s.Peripheral(testutils.DefaultAddress)

	release := make(chan time.Time)
	p.ExpectedCalls = nil
	p.On("Services").WaitUntil(release).Return(nil).Once()
	p.On("Services").Return(nil).Maybe()
	p.On("Close").Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := sess.Write(ctx, "a1", []byte{0x02, 0x01})
	s.ErrorIs(err, context.Canceled)

	close(release)
	// let the helper goroutine finish the enumeration
	time.Sleep(50 * time.Millisecond)
	p.Characteristic("39df", "a1").AssertNotCalled(s.T(), "Write", mock.Anything)
}

func (s *SessionTestSuite) TestDisconnectStopsDeliveryAndIsIdempotent() {
	sess := s.connect(testutils.DefaultAddress)
	p := s.Peripheral(testutils.DefaultAddress)
	a1 := p.Characteristic("39df", "a1")
	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil))

	s.NoError(sess.Disconnect())
	s.NoError(sess.Disconnect())

	select {
	case <-sess.Done():
	default:
		s.Fail("Done MUST be closed after Disconnect")
	}
	s.False(sess.LinkLost())
	a1.AssertNumberOfCalls(s.T(), "DisableNotifications", 1)
	p.AssertNumberOfCalls(s.T(), "Close", 1)

	s.False(a1.Notify([]byte{2, 80, 3, 1}))
	time.Sleep(20 * time.Millisecond)
	s.Empty(s.collected())

	s.ErrorIs(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil), device.ErrNotConnected)
	s.ErrorIs(sess.Write(context.Background(), "a1", []byte{1}), device.ErrNotConnected)
	s.Equal(Unsubscribed, sess.SubscriptionState(a1Key))
}

func (s *SessionTestSuite) TestLinkLossTearsDownSession() {
	sess := s.connect(testutils.DefaultAddress)
	p := s.Peripheral(testutils.DefaultAddress)
	a1 := p.Characteristic("39df", "a1")
	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), nil))

	p.DropLink()

	select {
	case <-sess.Done():
	case <-time.After(s.TestTimeout):
		s.FailNow("session did not observe link loss")
	}
	s.True(sess.LinkLost())
	a1.AssertNotCalled(s.T(), "DisableNotifications")
	s.NoError(sess.Disconnect())
}

func (s *SessionTestSuite) TestPreservesPerCharacteristicOrder() {
	sess := s.connect(testutils.DefaultAddress)
	a1 := s.Peripheral(testutils.DefaultAddress).Characteristic("39df", "a1")

	const count = 100
	got := make(chan byte, count)
	s.Require().NoError(sess.Subscribe(context.Background(), s.descriptor(sess, a1Key), func(n device.Notification) {
		got <- n.Data[0]
	}))

	for i := 0; i < count; i++ {
		a1.Notify([]byte{byte(i), 0, 0, 0})
	}
	for i := 0; i < count; i++ {
		select {
		case b := <-got:
			s.Require().Equal(byte(i), b)
		case <-time.After(s.TestTimeout):
			s.FailNow("missing notification", "index %d", i)
		}
	}
}
