//go:build test

package testutils

import (
	"context"
	"sync"

	"github.com/srg/racelink/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockAdvertisement is a static device.Advertisement.
type MockAdvertisement struct {
	Name           string
	Address        string
	Rssi           int
	NotConnectable bool
	ServiceIDs     []string
}

func (a *MockAdvertisement) LocalName() string  { return a.Name }
func (a *MockAdvertisement) Addr() string       { return a.Address }
func (a *MockAdvertisement) RSSI() int          { return a.Rssi }
func (a *MockAdvertisement) Connectable() bool  { return !a.NotConnectable }
func (a *MockAdvertisement) Services() []string { return device.NormalizeUUIDs(a.ServiceIDs) }

// MockRadio is a testify mock of device.Radio.
//
// Scan replays the configured advertisements and then blocks until ctx is
// done, returning ctx.Err() the way a platform scan does when its window ends.
type MockRadio struct {
	mock.Mock

	mu             sync.Mutex
	advertisements []device.Advertisement
}

// SetAdvertisements replaces the advertisements replayed by Scan.
func (r *MockRadio) SetAdvertisements(ads ...device.Advertisement) {
	r.mu.Lock()
	r.advertisements = append([]device.Advertisement(nil), ads...)
	r.mu.Unlock()
}

func (r *MockRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := r.Called(ctx, allowDup)
	if err := args.Error(0); err != nil {
		return err
	}

	r.mu.Lock()
	ads := append([]device.Advertisement(nil), r.advertisements...)
	r.mu.Unlock()

	for _, adv := range ads {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *MockRadio) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	args := r.Called(ctx, address)
	p, _ := args.Get(0).(device.Peripheral)
	if mp, ok := p.(*MockPeripheral); ok && mp == nil {
		p = nil
	}
	return p, args.Error(1)
}

// MockPeripheral is a testify mock of device.Peripheral.
type MockPeripheral struct {
	mock.Mock

	address  string
	name     string
	services []*MockService

	dropOnce     sync.Once
	disconnected chan struct{}
}

// NewMockPeripheral creates a peripheral without expectations.
func NewMockPeripheral(address, name string) *MockPeripheral {
	return &MockPeripheral{
		address:      address,
		name:         name,
		disconnected: make(chan struct{}),
	}
}

func (p *MockPeripheral) Address() string { return p.address }

func (p *MockPeripheral) Name() string {
	if p.name == "" {
		return p.address
	}
	return p.name
}

func (p *MockPeripheral) Services() ([]device.RemoteService, error) {
	args := p.Called()
	if err := args.Error(0); err != nil {
		return nil, err
	}
	result := make([]device.RemoteService, 0, len(p.services))
	for _, s := range p.services {
		result = append(result, s)
	}
	return result, nil
}

func (p *MockPeripheral) Disconnected() <-chan struct{} {
	return p.disconnected
}

func (p *MockPeripheral) Close() error {
	return p.Called().Error(0)
}

// DropLink simulates a link loss reported by the transport.
func (p *MockPeripheral) DropLink() {
	p.dropOnce.Do(func() { close(p.disconnected) })
}

// MockServices returns the configured services.
func (p *MockPeripheral) MockServices() []*MockService {
	return p.services
}

// Characteristic returns the first configured characteristic with uuid.
func (p *MockPeripheral) Characteristic(serviceUUID, uuid string) *MockCharacteristic {
	for _, s := range p.services {
		if device.NormalizeUUID(s.uuid) != device.NormalizeUUID(serviceUUID) {
			continue
		}
		for _, c := range s.characteristics {
			if device.NormalizeUUID(c.uuid) == device.NormalizeUUID(uuid) {
				return c
			}
		}
	}
	return nil
}

// MockService is a testify mock of device.RemoteService.
type MockService struct {
	mock.Mock

	uuid            string
	characteristics []*MockCharacteristic
}

func (s *MockService) UUID() string { return device.NormalizeUUID(s.uuid) }

func (s *MockService) Characteristics() ([]device.RemoteCharacteristic, error) {
	args := s.Called()
	if err := args.Error(0); err != nil {
		return nil, err
	}
	result := make([]device.RemoteCharacteristic, 0, len(s.characteristics))
	for _, c := range s.characteristics {
		result = append(result, c)
	}
	return result, nil
}

// MockCharacteristic is a testify mock of device.RemoteCharacteristic.
// The handler passed to a successful EnableNotifications is captured so tests
// can push values with Notify.
type MockCharacteristic struct {
	mock.Mock

	uuid       string
	properties device.Property

	mu      sync.Mutex
	handler func([]byte)
}

func (c *MockCharacteristic) UUID() string                { return device.NormalizeUUID(c.uuid) }
func (c *MockCharacteristic) Properties() device.Property { return c.properties }

func (c *MockCharacteristic) EnableNotifications(handler func([]byte)) error {
	err := c.Called().Error(0)
	if err == nil {
		c.mu.Lock()
		c.handler = handler
		c.mu.Unlock()
	}
	return err
}

func (c *MockCharacteristic) DisableNotifications() error {
	err := c.Called().Error(0)
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return err
}

func (c *MockCharacteristic) Write(payload []byte) error {
	return c.Called(payload).Error(0)
}

// Notify pushes a value-changed event through the captured handler.
// It reports whether notifications were enabled.
func (c *MockCharacteristic) Notify(data []byte) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a handler is currently captured.
func (c *MockCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Expect drops the builder's default expectations so a test can install its own.
func (c *MockCharacteristic) Expect() *MockCharacteristic {
	c.ExpectedCalls = nil
	return c
}

var (
	_ device.Radio                = (*MockRadio)(nil)
	_ device.Peripheral           = (*MockPeripheral)(nil)
	_ device.RemoteService        = (*MockService)(nil)
	_ device.RemoteCharacteristic = (*MockCharacteristic)(nil)
	_ device.Advertisement        = (*MockAdvertisement)(nil)
)
