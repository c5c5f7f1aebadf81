package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/racelink/internal/device"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newPlatformDevice

// Radio implements device.Radio on top of a go-ble device.
// The platform device is created lazily on first use and reused afterwards.
type Radio struct {
	logger *logrus.Logger

	once sync.Once
	dev  ble.Device
	err  error
}

// NewRadio creates a device.Radio backed by the platform BLE stack.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) device() (ble.Device, error) {
	r.once.Do(func() {
		r.dev, r.err = DeviceFactory()
		if r.err != nil {
			r.err = NormalizeError(r.err)
			r.logger.WithField("error", r.err).Error("Failed to create BLE device")
		}
	})
	return r.dev, r.err
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (r *Radio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}
	return NormalizeError(dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}))
}

// Dial connects to the peripheral with the given address.
// A nil peripheral is returned when the stack produced no client handle.
func (r *Radio) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}
	if client == nil {
		return nil, nil
	}
	return NewPeripheral(address, client, r.logger), nil
}

var _ device.Radio = (*Radio)(nil)
