// Package device defines the transport-agnostic BLE model used by racelink.
//
// It provides:
//   - Radio and Peripheral contracts implemented by transport adapters (see go-ble)
//   - GATT service and characteristic handles with uncached discovery
//   - Characteristic descriptors and property sets exposed to callers
//   - The error taxonomy shared by discovery, session and dispatch
package device
