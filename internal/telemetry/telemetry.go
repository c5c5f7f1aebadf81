// Package telemetry maps race controller notification payloads to frames and
// logical control commands to payloads.
//
// The controller's wire format is not fully known. Decoding uses a
// positional placeholder layout that deployments replace with their own
// Layout; command bytes are supplied as data through a CommandTable.
package telemetry

import (
	"fmt"
)

// FrameSize is the minimum length of a decodable payload under any layout.
const FrameSize = 4

// Frame is one decoded telemetry record.
type Frame struct {
	CarID     uint8
	FuelLevel uint8
	LapCount  uint8
	Position  uint8
}

func (f Frame) String() string {
	return fmt.Sprintf("Car %d: Fuel=%d, Laps=%d, Pos=%d", f.CarID, f.FuelLevel, f.LapCount, f.Position)
}

// Layout is a field table: the byte offset of every Frame field in a payload.
type Layout struct {
	CarID     int `yaml:"car_id"`
	FuelLevel int `yaml:"fuel_level"`
	LapCount  int `yaml:"lap_count"`
	Position  int `yaml:"position"`
}

// DefaultLayout maps bytes 0..3 to CarID, FuelLevel, LapCount, Position.
var DefaultLayout = Layout{CarID: 0, FuelLevel: 1, LapCount: 2, Position: 3}

// MinLength is the shortest payload the layout can decode.
func (l Layout) MinLength() int {
	return max(l.CarID, l.FuelLevel, l.LapCount, l.Position) + 1
}

// Validate rejects negative offsets and layouts that would decode payloads
// shorter than FrameSize.
func (l Layout) Validate() error {
	if min(l.CarID, l.FuelLevel, l.LapCount, l.Position) < 0 {
		return fmt.Errorf("telemetry layout: negative offset in %+v", l)
	}
	if l.MinLength() < FrameSize {
		return fmt.Errorf("telemetry layout: %+v decodes %d-byte payloads, need at least %d", l, l.MinLength(), FrameSize)
	}
	return nil
}

// Decode extracts a frame. Payloads shorter than FrameSize or MinLength are
// skipped (ok is false); values are taken as-is without range checks.
func (l Layout) Decode(raw []byte) (frame Frame, ok bool) {
	if len(raw) < FrameSize || len(raw) < l.MinLength() {
		return Frame{}, false
	}
	return Frame{
		CarID:     raw[l.CarID],
		FuelLevel: raw[l.FuelLevel],
		LapCount:  raw[l.LapCount],
		Position:  raw[l.Position],
	}, true
}

// Decode decodes raw with DefaultLayout.
func Decode(raw []byte) (Frame, bool) {
	return DefaultLayout.Decode(raw)
}
