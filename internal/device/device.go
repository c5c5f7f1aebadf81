package device

import (
	"context"
	"fmt"
)

// Advertisement is the subset of a BLE advertisement used for discovery.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// Radio is the platform BLE radio: it scans for advertisements and dials peripherals.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
	Dial(ctx context.Context, address string) (Peripheral, error)
}

// Peripheral is a live connection to a remote GATT server.
type Peripheral interface {
	Address() string
	Name() string

	// Services queries the remote service list, bypassing any platform cache.
	Services() ([]RemoteService, error)

	// Disconnected is closed when the transport reports a link loss.
	// A nil channel means the transport cannot report it.
	Disconnected() <-chan struct{}

	Close() error
}

// RemoteService is a GATT service handle on a live connection.
type RemoteService interface {
	UUID() string

	// Characteristics queries the service's characteristics, bypassing any platform cache.
	Characteristics() ([]RemoteCharacteristic, error)
}

// RemoteCharacteristic is a GATT characteristic handle on a live connection.
type RemoteCharacteristic interface {
	UUID() string
	Properties() Property

	// EnableNotifications writes the notification-enable configuration and
	// routes every value-changed event to handler.
	EnableNotifications(handler func([]byte)) error
	DisableNotifications() error

	// Write performs a write with response.
	Write(payload []byte) error
}

// DiscoveredDevice is a scan result offered to the caller for connection.
type DiscoveredDevice struct {
	ID   string // platform address or handle
	Name string
	RSSI int
}

func (d DiscoveredDevice) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// CharacteristicDescriptor describes one discovered characteristic.
type CharacteristicDescriptor struct {
	ServiceUUID     string
	UUID            string
	Properties      Property
	LastRawValueHex string
}

// Key identifies the characteristic within its service.
func (d CharacteristicDescriptor) Key() string {
	return CharacteristicKey(d.ServiceUUID, d.UUID)
}

// CharacteristicKey builds the service-scoped identity of a characteristic.
func CharacteristicKey(serviceUUID, charUUID string) string {
	return NormalizeUUID(serviceUUID) + "/" + NormalizeUUID(charUUID)
}

// Notification is a single value-changed event.
type Notification struct {
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}
