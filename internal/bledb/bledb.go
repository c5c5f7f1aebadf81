// Package bledb normalises BLE UUIDs and resolves the UUIDs that show up on a
// race controller (GAP, GATT, device information, battery and the Carrera
// vendor service) to human-readable names for the CLI.
package bledb

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID tail shared by all 16-bit assigned numbers.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Carrera Control Unit (AppConnect) vendor UUIDs.
const (
	CarreraService      = "39df7777b1b4b90b57f17144ae4e4a6a"
	CarreraOutput       = "39df8888b1b4b90b57f17144ae4e4a6a"
	CarreraNotification = "39df9999b1b4b90b57f17144ae4e4a6a"
)

var services = map[string]string{
	"1800":         "Generic Access",
	"1801":         "Generic Attribute",
	"180a":         "Device Information",
	"180f":         "Battery Service",
	CarreraService: "Carrera Control Unit",
}

var characteristics = map[string]string{
	"2a00":              "Device Name",
	"2a01":              "Appearance",
	"2a04":              "Peripheral Preferred Connection Parameters",
	"2a05":              "Service Changed",
	"2a19":              "Battery Level",
	"2a24":              "Model Number String",
	"2a26":              "Firmware Revision String",
	"2a29":              "Manufacturer Name String",
	CarreraOutput:       "Control Unit Output",
	CarreraNotification: "Control Unit Notification",
}

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Braces and a 0x prefix are stripped. Full 128-bit UUIDs in Bluetooth SIG base
// format (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to the 16-bit short form (xxxx).
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// LookupService returns the assigned name of a service UUID, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the assigned name of a characteristic UUID, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}
