// FilePath: internal/models/models.pin.go
package models

import (
	"fmt"
	"strconv"

	"github.com/itsatony/relayhub/internal/protocol"
)

// PinType is the addressable pin class, carried on the wire as a single
// character ('v', 'd', 'a').
type PinType byte

const (
	PinVirtual PinType = 'v'
	PinDigital PinType = 'd'
	PinAnalog  PinType = 'a'
)

// PinTypeOf maps a wire tag to a PinType.
func PinTypeOf(c byte) (PinType, bool) {
	switch PinType(c) {
	case PinVirtual, PinDigital, PinAnalog:
		return PinType(c), true
	}
	return 0, false
}

func (t PinType) String() string {
	switch t {
	case PinVirtual:
		return "VIRTUAL"
	case PinDigital:
		return "DIGITAL"
	case PinAnalog:
		return "ANALOG"
	}
	return "UNKNOWN"
}

// Tag returns the single-character wire tag.
func (t PinType) Tag() string { return string(rune(t)) }

// MarshalJSON encodes the pin type under its profile JSON name.
func (t PinType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts both the profile JSON name and the wire tag.
func (t *PinType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"VIRTUAL"`, `"v"`:
		*t = PinVirtual
	case `"DIGITAL"`, `"d"`:
		*t = PinDigital
	case `"ANALOG"`, `"a"`:
		*t = PinAnalog
	default:
		return fmt.Errorf("unknown pin type %s", data)
	}
	return nil
}

// PinKey addresses one stored value: a (device, pin type, pin) tuple,
// optionally extended with a widget property name. Keys differing only in
// Property are distinct store entries.
type PinKey struct {
	DeviceID int
	Type     PinType
	Pin      int
	Property string
}

// IsProperty reports whether the key addresses a widget property rather
// than a pin value.
func (k PinKey) IsProperty() bool { return k.Property != "" }

// ValueKey strips the property extension, yielding the plain pin key.
func (k PinKey) ValueKey() PinKey {
	k.Property = ""
	return k
}

// HardwareBody renders the body replayed to a hardware connection for this
// key. Property keys use the property push form "<pin> <property> <value>",
// value keys the write form "<t>w <pin> <value>".
func (k PinKey) HardwareBody(value string) string {
	if k.IsProperty() {
		return protocol.Join(strconv.Itoa(k.Pin), k.Property, value)
	}
	return protocol.Join(k.Type.Tag()+"w", strconv.Itoa(k.Pin), value)
}

// AppBody renders the body pushed to app connections, prefixed with the
// composite "<dashId>-<deviceId>" address.
func (k PinKey) AppBody(dashID int, value string) string {
	return protocol.Join(AppAddress(dashID, k.DeviceID), k.HardwareBody(value))
}

func (k PinKey) String() string {
	s := fmt.Sprintf("%d-%s%d", k.DeviceID, k.Type.Tag(), k.Pin)
	if k.IsProperty() {
		s += protocol.DeviceSeparator + k.Property
	}
	return s
}

// AppAddress builds the composite address framing for app-bound pushes.
func AppAddress(dashID, deviceID int) string {
	return strconv.Itoa(dashID) + protocol.DeviceSeparator + strconv.Itoa(deviceID)
}

// ParseDouble parses a pin value for numeric comparison. Non-numeric values
// yield ok=false, which fails every numeric condition but remains valid for
// string conditions.
func ParseDouble(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
