package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/racelink/internal/device"
)

var propertyBits = []struct {
	ble ble.Property
	dev device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// NewProperties converts go-ble characteristic property flags to a device.Property set.
func NewProperties(p ble.Property) device.Property {
	var props device.Property
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			props |= b.dev
		}
	}
	return props
}
