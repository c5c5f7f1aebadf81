//go:build test

package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/racelink/internal/device"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig is the mock profile of one characteristic.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
}

// ServiceConfig is the mock profile of one service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfile is the complete mock profile of a peripheral.
type PeripheralProfile struct {
	Address  string          `json:"address"`
	Name     string          `json:"name,omitempty"`
	RSSI     int             `json:"rssi,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds a MockPeripheral with permissive default
// expectations: every GATT call succeeds unless configured otherwise.
//
//	p := testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").
//	    WithName("Carrera-RX9").
//	    WithService("39df").
//	    WithCharacteristic("a1", "notify,write").
//	    WithCharacteristic("b2", "read").
//	    Build()
type PeripheralBuilder struct {
	profile     PeripheralProfile
	servicesErr error
	serviceErrs map[int]error
	closeErr    error
	enableErrs  map[string]error
	writeErrs   map[string]error
}

// NewPeripheralBuilder creates a builder for a peripheral at address.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		profile:     PeripheralProfile{Address: address},
		serviceErrs: make(map[int]error),
		enableErrs:  make(map[string]error),
		writeErrs:   make(map[string]error),
	}
}

// WithName sets the advertised and GAP name.
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.profile.Name = name
	return b
}

// WithRSSI sets the advertised RSSI.
func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.profile.RSSI = rssi
	return b
}

// WithService adds a service to the profile.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// WithServicesError makes the service query fail.
func (b *PeripheralBuilder) WithServicesError(err error) *PeripheralBuilder {
	b.servicesErr = err
	return b
}

// WithCharacteristicsError makes the characteristic query of the last added service fail.
func (b *PeripheralBuilder) WithCharacteristicsError(err error) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristicsError: no service added yet, call WithService first")
	}
	b.serviceErrs[len(b.profile.Services)-1] = err
	return b
}

// WithEnableError makes enabling notifications on uuid fail.
func (b *PeripheralBuilder) WithEnableError(uuid string, err error) *PeripheralBuilder {
	b.enableErrs[device.NormalizeUUID(uuid)] = err
	return b
}

// WithWriteError makes writes to uuid fail.
func (b *PeripheralBuilder) WithWriteError(uuid string, err error) *PeripheralBuilder {
	b.writeErrs[device.NormalizeUUID(uuid)] = err
	return b
}

// WithCloseError makes Close fail.
func (b *PeripheralBuilder) WithCloseError(err error) *PeripheralBuilder {
	b.closeErr = err
	return b
}

// FromJSON replaces the profile with a JSON description.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var profile PeripheralProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if profile.Address == "" {
		profile.Address = b.profile.Address
	}
	b.profile = profile
	return b
}

// Profile returns the configured profile.
func (b *PeripheralBuilder) Profile() PeripheralProfile {
	return b.profile
}

// Advertisement returns the advertisement of the configured peripheral.
func (b *PeripheralBuilder) Advertisement() *MockAdvertisement {
	var services []string
	for _, s := range b.profile.Services {
		services = append(services, s.UUID)
	}
	return &MockAdvertisement{
		Name:       b.profile.Name,
		Address:    b.profile.Address,
		Rssi:       b.profile.RSSI,
		ServiceIDs: services,
	}
}

// Build creates the MockPeripheral.
func (b *PeripheralBuilder) Build() *MockPeripheral {
	p := NewMockPeripheral(b.profile.Address, b.profile.Name)

	for i, sc := range b.profile.Services {
		svc := &MockService{uuid: sc.UUID}
		for _, cc := range sc.Characteristics {
			c := &MockCharacteristic{
				uuid:       cc.UUID,
				properties: device.ParseProperties(cc.Properties),
			}
			key := device.NormalizeUUID(cc.UUID)
			c.On("EnableNotifications").Return(b.enableErrs[key]).Maybe()
			c.On("DisableNotifications").Return(nil).Maybe()
			c.On("Write", mock.Anything).Return(b.writeErrs[key]).Maybe()
			svc.characteristics = append(svc.characteristics, c)
		}
		svc.On("Characteristics").Return(b.serviceErrs[i]).Maybe()
		p.services = append(p.services, svc)
	}

	p.On("Services").Return(b.servicesErr).Maybe()
	p.On("Close").Return(b.closeErr).Maybe()
	return p
}

// RadioBuilder builds a MockRadio that advertises and dials mock peripherals.
type RadioBuilder struct {
	peripherals    []*PeripheralBuilder
	advertisements []device.Advertisement
	scanErr        error
	dialErrs       map[string]error
}

// NewRadioBuilder creates an empty radio builder.
func NewRadioBuilder() *RadioBuilder {
	return &RadioBuilder{dialErrs: make(map[string]error)}
}

// WithPeripheral advertises the peripheral and makes it dialable.
func (b *RadioBuilder) WithPeripheral(p *PeripheralBuilder) *RadioBuilder {
	b.peripherals = append(b.peripherals, p)
	return b
}

// WithAdvertisements adds advertisements that have no dialable peripheral.
func (b *RadioBuilder) WithAdvertisements(ads ...device.Advertisement) *RadioBuilder {
	b.advertisements = append(b.advertisements, ads...)
	return b
}

// WithScanError makes Scan fail immediately.
func (b *RadioBuilder) WithScanError(err error) *RadioBuilder {
	b.scanErr = err
	return b
}

// WithDialError makes dialing address fail.
func (b *RadioBuilder) WithDialError(address string, err error) *RadioBuilder {
	b.dialErrs[address] = err
	return b
}

// Build creates the MockRadio together with the peripherals it dials, keyed by address.
func (b *RadioBuilder) Build() (*MockRadio, map[string]*MockPeripheral) {
	ads := make([]device.Advertisement, 0, len(b.peripherals)+len(b.advertisements))
	for _, pb := range b.peripherals {
		ads = append(ads, pb.Advertisement())
	}
	ads = append(ads, b.advertisements...)

	r := &MockRadio{}
	r.SetAdvertisements(ads...)
	r.On("Scan", mock.Anything, mock.Anything).Return(b.scanErr).Maybe()

	peripherals := make(map[string]*MockPeripheral, len(b.peripherals))
	for _, pb := range b.peripherals {
		p := pb.Build()
		addr := pb.profile.Address
		peripherals[addr] = p
		if err, ok := b.dialErrs[addr]; ok {
			r.On("Dial", mock.Anything, addr).Return(nil, err).Maybe()
			continue
		}
		r.On("Dial", mock.Anything, addr).Return(p, nil).Maybe()
	}
	for addr, err := range b.dialErrs {
		if _, ok := peripherals[addr]; !ok {
			r.On("Dial", mock.Anything, addr).Return(nil, err).Maybe()
		}
	}
	// unknown addresses yield no handle
	r.On("Dial", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	return r, peripherals
}
