// Package session manages the single live GATT connection to a race controller.
//
// A Session owns the transport handle, the descriptor table built from an
// uncached enumeration at connect time, and one dispatcher route per
// subscribed characteristic. Blocking transport calls of Subscribe and Write
// run in a helper goroutine so the caller's context is honored.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/dispatch"
	"github.com/srg/racelink/internal/groutine"
	"github.com/srg/racelink/internal/statuslog"
	"github.com/srg/racelink/internal/telemetry"
)

// ErrSubscribeInProgress is returned when a subscribe for the same
// characteristic has not finished yet.
var ErrSubscribeInProgress = errors.New("subscribe already in progress")

// SubState is the subscription state of one characteristic.
type SubState int

const (
	Unsubscribed SubState = iota
	Subscribing
	Subscribed
)

func (s SubState) String() string {
	switch s {
	case Subscribing:
		return "Subscribing"
	case Subscribed:
		return "Subscribed"
	default:
		return "Unsubscribed"
	}
}

// Deps are the collaborators of a Session.
type Deps struct {
	Log         *statuslog.Log
	Logger      *logrus.Logger
	Layout      *telemetry.Layout // nil uses telemetry.DefaultLayout
	OnFrame     dispatch.FrameFunc
	RouteBuffer int
}

// Session is one live connection.
type Session struct {
	peripheral device.Peripheral
	target     device.DiscoveredDevice
	table      *Table
	dispatcher *dispatch.Dispatcher
	log        *statuslog.Log
	logger     *logrus.Logger

	mu      sync.Mutex
	closed  bool
	handles map[string]device.RemoteCharacteristic
	states  map[string]SubState

	closeOnce sync.Once
	closeErr  error
	linkLost  bool
	done      chan struct{}
}

// Connect dials target, enumerates its services and characteristics without
// cache and returns the live session.
func Connect(ctx context.Context, radio device.Radio, target device.DiscoveredDevice, deps Deps) (*Session, error) {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Log == nil {
		deps.Log = statuslog.New(statuslog.DefaultCapacity, deps.Logger)
	}
	if deps.Layout != nil {
		if err := deps.Layout.Validate(); err != nil {
			return nil, err
		}
	}

	deps.Logger.WithFields(logrus.Fields{
		"address": target.ID,
		"name":    target.Name,
	}).Info("Connecting to device...")

	p, err := radio.Dial(ctx, target.ID)
	if err == nil && p == nil {
		err = errors.New("no device handle")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &device.ConnectError{Kind: device.DeviceUnreachable, Address: target.ID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		_ = p.Close()
		return nil, err
	}

	s := &Session{
		peripheral: p,
		target:     target,
		table:      NewTable(),
		log:        deps.Log,
		logger:     deps.Logger,
		handles:    make(map[string]device.RemoteCharacteristic),
		states:     make(map[string]SubState),
		done:       make(chan struct{}),
	}
	s.dispatcher = dispatch.New(dispatch.Options{
		Layout:     deps.Layout,
		Log:        deps.Log,
		Recorder:   s.table,
		Logger:     deps.Logger,
		BufferSize: deps.RouteBuffer,
	})
	s.dispatcher.OnFrame(deps.OnFrame)

	rows, handles, err := s.enumerate()
	if err != nil {
		s.log.Printf("Services not readable: %v", err)
		if cerr := p.Close(); cerr != nil {
			s.logger.WithError(cerr).Warn("Failed to release transport after enumeration failure")
		}
		return nil, &device.ConnectError{Kind: device.ServiceEnumerationFailed, Address: target.ID, Err: err}
	}
	s.table.Replace(rows)
	s.handles = handles

	s.logger.WithFields(logrus.Fields{
		"address":         target.ID,
		"characteristics": s.table.Len(),
	}).Info("Connected")

	if dc := p.Disconnected(); dc != nil {
		groutine.Go(context.Background(), "link-monitor:"+target.ID, func(ctx context.Context) {
			s.monitorLink(dc)
		})
	}
	return s, nil
}

// enumerate queries every service and its characteristics. A service whose
// characteristics cannot be read is skipped.
func (s *Session) enumerate() ([]device.CharacteristicDescriptor, map[string]device.RemoteCharacteristic, error) {
	svcs, err := s.peripheral.Services()
	if err != nil {
		return nil, nil, err
	}

	var rows []device.CharacteristicDescriptor
	handles := make(map[string]device.RemoteCharacteristic)
	for _, svc := range svcs {
		chars, err := svc.Characteristics()
		if err != nil {
			s.logger.WithError(err).WithField("service", svc.UUID()).Warn("Skipping service with unreadable characteristics")
			s.log.Printf("Characteristics not readable for service %s: %v", svc.UUID(), err)
			continue
		}
		for _, c := range chars {
			row := device.CharacteristicDescriptor{
				ServiceUUID: device.NormalizeUUID(svc.UUID()),
				UUID:        device.NormalizeUUID(c.UUID()),
				Properties:  c.Properties(),
			}
			if _, dup := handles[row.Key()]; dup {
				continue
			}
			rows = append(rows, row)
			handles[row.Key()] = c
		}
	}
	return rows, handles, nil
}

// Name returns the peripheral's display name.
func (s *Session) Name() string {
	if s.target.Name != "" {
		return s.target.Name
	}
	return s.peripheral.Name()
}

// Address returns the peripheral address.
func (s *Session) Address() string {
	return s.peripheral.Address()
}

// Characteristics returns a snapshot of the descriptor table.
func (s *Session) Characteristics() []device.CharacteristicDescriptor {
	return s.table.Snapshot()
}

// SubscriptionState returns the subscription state of a characteristic key.
func (s *Session) SubscriptionState(key string) SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key]
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LinkLost reports whether the session ended because the transport dropped the link.
func (s *Session) LinkLost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkLost
}

// Subscribe enables notifications on desc and routes them to onNotify.
// Subscribing an already subscribed characteristic only replaces the callback.
// After cancellation the characteristic reports Subscribing until the pending
// enable has settled and, on a late success, been rolled back.
func (s *Session) Subscribe(ctx context.Context, desc device.CharacteristicDescriptor, onNotify dispatch.NotifyFunc) error {
	key := desc.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return device.ErrNotConnected
	}
	row, known := s.table.Lookup(key)
	handle := s.handles[key]
	if !known || handle == nil {
		s.mu.Unlock()
		return &device.SubscribeError{Kind: device.UnknownCharacteristic, Characteristic: desc.UUID}
	}
	if !row.Properties.Has(device.PropNotify) {
		s.mu.Unlock()
		return &device.SubscribeError{Kind: device.NotifyUnsupported, Characteristic: row.UUID}
	}
	switch s.states[key] {
	case Subscribed:
		s.dispatcher.Rebind(key, onNotify)
		s.mu.Unlock()
		s.logger.WithField("characteristic", key).Debug("Replaced notification callback")
		return nil
	case Subscribing:
		s.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", row.UUID, ErrSubscribeInProgress)
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.states[key] = Subscribing
	generation := s.table.Generation()
	s.mu.Unlock()

	route := s.dispatcher.Open(generation, row.ServiceUUID, row.UUID, onNotify)
	result := make(chan error, 1)
	groutine.Go(ctx, "subscribe:"+key, func(context.Context) {
		result <- handle.EnableNotifications(func(data []byte) {
			route.Deliver(data)
		})
	})

	select {
	case err := <-result:
		if err != nil {
			route.Close()
			s.setState(key, Unsubscribed)
			s.log.Printf("Notify enabled: %s – %v", row.UUID, err)
			return &device.SubscribeError{Kind: device.WriteRejected, Characteristic: row.UUID, Err: err}
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			route.Close()
			s.disable(key, handle)
			return device.ErrNotConnected
		}
		s.dispatcher.Register(route)
		s.states[key] = Subscribed
		s.mu.Unlock()

		s.log.Printf("Notify enabled: %s – Success", row.UUID)
		return nil

	case <-ctx.Done():
		route.Close()
		// stays Subscribing until the pending enable is settled
		groutine.Go(context.Background(), "subscribe-rollback:"+key, func(context.Context) {
			if err := <-result; err == nil {
				s.disable(key, handle)
			}
			s.setState(key, Unsubscribed)
		})
		return ctx.Err()
	}
}

// SubscribeAll subscribes every Notify characteristic. It returns the number of
// successful subscriptions and the first failure after attempting all.
func (s *Session) SubscribeAll(ctx context.Context, onNotify dispatch.NotifyFunc) (int, error) {
	var (
		count    int
		firstErr error
	)
	for _, row := range s.table.Snapshot() {
		if !row.Properties.Has(device.PropNotify) {
			continue
		}
		if err := s.Subscribe(ctx, row, onNotify); err != nil {
			s.logger.WithError(err).WithField("characteristic", row.Key()).Warn("Subscribe failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	return count, firstErr
}

// Write re-enumerates the peripheral without cache, finds the first
// characteristic with the given UUID that supports Write and writes payload
// with response.
func (s *Session) Write(ctx context.Context, characteristicUUID string, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return device.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	want := device.NormalizeUUID(characteristicUUID)
	data := append([]byte(nil), payload...)
	result := make(chan error, 1)

	groutine.Go(ctx, "write:"+want, func(context.Context) {
		handle, err := s.findWritable(want)
		if err != nil {
			result <- &device.WriteError{Kind: device.NotFound, Characteristic: want, Err: err}
			return
		}
		if handle == nil {
			result <- &device.WriteError{Kind: device.NotFound, Characteristic: want}
			return
		}
		// the caller may have given up during enumeration
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		if err := handle.Write(data); err != nil {
			result <- &device.WriteError{Kind: device.Rejected, Characteristic: want, Err: err}
			return
		}
		result <- nil
	})

	select {
	case err := <-result:
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"characteristic": want,
				"bytes":          len(data),
			}).Debug("Write completed")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) findWritable(uuid string) (device.RemoteCharacteristic, error) {
	svcs, err := s.peripheral.Services()
	if err != nil {
		return nil, err
	}
	for _, svc := range svcs {
		chars, err := svc.Characteristics()
		if err != nil {
			s.logger.WithError(err).WithField("service", svc.UUID()).Debug("Skipping unreadable service during write lookup")
			continue
		}
		for _, c := range chars {
			if device.NormalizeUUID(c.UUID()) == uuid && c.Properties().Has(device.PropWrite) {
				return c, nil
			}
		}
	}
	return nil, nil
}

// Disconnect stops notification delivery, disables notifications and releases
// the transport. Calls after the first are no-ops.
func (s *Session) Disconnect() error {
	return s.shutdown(false)
}

func (s *Session) shutdown(linkLost bool) error {
	first := false
	s.closeOnce.Do(func() {
		first = true

		s.mu.Lock()
		s.closed = true
		s.linkLost = linkLost
		subscribed := make(map[string]device.RemoteCharacteristic)
		for key, state := range s.states {
			if state == Subscribed {
				subscribed[key] = s.handles[key]
			}
		}
		s.states = make(map[string]SubState)
		s.mu.Unlock()

		routes := s.dispatcher.Len()
		s.dispatcher.CloseAll()

		if !linkLost {
			for key, handle := range subscribed {
				s.disable(key, handle)
			}
		}

		if err := s.peripheral.Close(); err != nil && !linkLost {
			s.closeErr = err
		}

		s.logger.WithFields(logrus.Fields{
			"address":   s.target.ID,
			"link_lost": linkLost,
			"routes":    routes,
		}).Info("Session closed")
		close(s.done)
	})
	if !first {
		return nil
	}
	return s.closeErr
}

func (s *Session) monitorLink(dc <-chan struct{}) {
	select {
	case <-dc:
		s.logger.WithField("address", s.target.ID).Warn("Link lost")
		_ = s.shutdown(true)
	case <-s.done:
	}
}

func (s *Session) disable(key string, handle device.RemoteCharacteristic) {
	if handle == nil {
		return
	}
	if err := handle.DisableNotifications(); err != nil {
		s.logger.WithError(err).WithField("characteristic", key).Warn("Failed to disable notifications")
	}
}

func (s *Session) setState(key string, state SubState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.states[key] = state
}
