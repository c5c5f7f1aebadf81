package goble

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/racelink/internal/device"
)

// GATTClient is the part of ble.Client used by Peripheral.
type GATTClient interface {
	Name() string
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Peripheral implements device.Peripheral over a go-ble client.
// Every GATT procedure goes to the device; the client's cached profile is never consulted.
type Peripheral struct {
	address string
	client  GATTClient
	logger  *logrus.Logger

	// gattMutex serializes GATT procedures; notification callbacks never take it.
	gattMutex sync.Mutex
}

// NewPeripheral wraps a connected go-ble client.
func NewPeripheral(address string, client GATTClient, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{address: address, client: client, logger: logger}
}

func (p *Peripheral) Address() string { return p.address }

func (p *Peripheral) Name() string {
	if name := p.client.Name(); name != "" {
		return name
	}
	return p.address
}

// Services discovers the primary services of the peripheral.
func (p *Peripheral) Services() ([]device.RemoteService, error) {
	p.gattMutex.Lock()
	svcs, err := p.client.DiscoverServices(nil)
	p.gattMutex.Unlock()
	if err != nil {
		return nil, NormalizeError(err)
	}

	result := make([]device.RemoteService, 0, len(svcs))
	for _, svc := range svcs {
		result = append(result, &service{p: p, svc: svc})
	}
	p.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"services": len(result),
	}).Debug("Discovered services")
	return result, nil
}

// Disconnected returns the client's link-loss channel when the platform exposes one.
func (p *Peripheral) Disconnected() <-chan struct{} {
	if dc, ok := p.client.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	p.logger.Debug("Client does not support Disconnected() channel")
	return nil
}

// Close cancels the connection.
func (p *Peripheral) Close() error {
	return NormalizeError(p.client.CancelConnection())
}

type service struct {
	p   *Peripheral
	svc *ble.Service
}

func (s *service) UUID() string {
	return device.NormalizeUUID(s.svc.UUID.String())
}

// Characteristics discovers the characteristics of the service. Descriptors of
// notify/indicate characteristics are discovered too so the CCCD handle is known.
func (s *service) Characteristics() ([]device.RemoteCharacteristic, error) {
	s.p.gattMutex.Lock()
	defer s.p.gattMutex.Unlock()

	chars, err := s.p.client.DiscoverCharacteristics(nil, s.svc)
	if err != nil {
		return nil, NormalizeError(err)
	}

	result := make([]device.RemoteCharacteristic, 0, len(chars))
	for _, c := range chars {
		if c.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
			if _, err := s.p.client.DiscoverDescriptors(nil, c); err != nil {
				s.p.logger.WithFields(logrus.Fields{
					"service_uuid": s.UUID(),
					"char_uuid":    c.UUID.String(),
					"error":        err,
				}).Warn("Failed to discover descriptors")
			}
		}
		result = append(result, &characteristic{p: s.p, char: c})
	}
	return result, nil
}

type characteristic struct {
	p    *Peripheral
	char *ble.Characteristic
}

func (c *characteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

func (c *characteristic) Properties() device.Property {
	return NewProperties(c.char.Property)
}

// indicate reports whether the characteristic only supports indications.
func (c *characteristic) indicate() bool {
	return c.char.Property&ble.CharNotify == 0 && c.char.Property&ble.CharIndicate != 0
}

func (c *characteristic) EnableNotifications(handler func([]byte)) error {
	c.p.gattMutex.Lock()
	defer c.p.gattMutex.Unlock()
	return NormalizeError(c.p.client.Subscribe(c.char, c.indicate(), func(data []byte) {
		handler(data)
	}))
}

func (c *characteristic) DisableNotifications() error {
	c.p.gattMutex.Lock()
	defer c.p.gattMutex.Unlock()
	return NormalizeError(c.p.client.Unsubscribe(c.char, c.indicate()))
}

func (c *characteristic) Write(payload []byte) error {
	c.p.gattMutex.Lock()
	defer c.p.gattMutex.Unlock()
	return NormalizeError(c.p.client.WriteCharacteristic(c.char, payload, false))
}

var _ device.Peripheral = (*Peripheral)(nil)
