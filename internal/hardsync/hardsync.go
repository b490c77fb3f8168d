// FilePath: internal/hardsync/hardsync.go
package hardsync

import (
	"sort"
	"strconv"

	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/store"
	nuts "github.com/vaudience/go-nuts"
)

// SyncAll replays the full last-known state of one device to a hardware
// connection: first every synchronizable widget's current value in widget
// declaration order, then every raw store entry of the device that no
// widget already covered. Property entries are never part of a bulk
// hardware sync; they are replayed on demand only. The RTC widget is
// skipped — replaying a clock value would desynchronize the requesting
// clock. With no intervening writes the emitted sequence is byte-identical
// across calls.
func SyncAll(conn protocol.Conn, dash *models.Dashboard, pins *store.PinStorage, deviceID int, msgID uint16) {
	covered := make(map[models.PinKey]struct{})

	for _, w := range dash.Widgets {
		if w.Type == models.WidgetRTC || w.DeviceID != deviceID || !w.IsSynchronizable() {
			continue
		}
		covered[w.Key()] = struct{}{}
		if w.Value == "" {
			continue
		}
		if err := conn.Send(protocol.NewMessage(protocol.CmdHardware, msgID, w.HardwareBody())); err != nil {
			nuts.L.Debugf("[HardSync] widget replay failed: %v", err)
			return
		}
	}

	pins.ForEach(func(key models.PinKey, value string) {
		if key.DeviceID != deviceID || key.IsProperty() {
			return
		}
		if _, ok := covered[key]; ok {
			return
		}
		if err := conn.Send(protocol.NewMessage(protocol.CmdHardware, msgID, key.HardwareBody(value))); err != nil {
			nuts.L.Debugf("[HardSync] store replay failed: %v", err)
		}
	})
}

// SyncPins serves the restricted partial-sync form ("read pins X, Y, ...",
// e.g. "vr 22 33"). For each requested pin a matching synchronizable
// widget's live value is preferred over the raw store entry; pins with
// neither are silently skipped. Write-op bodies are ignored.
func SyncPins(conn protocol.Conn, dash *models.Dashboard, pins *store.PinStorage, deviceID int, msgID uint16, body string) error {
	parts := protocol.Split(body)
	if len(parts) < 2 || parts[0] == "" {
		return errors.NewProtocolError("malformed sync request body", nil)
	}

	pinType, ok := models.PinTypeOf(parts[0][0])
	if !ok {
		return errors.NewProtocolError("unknown pin type in sync request", nil)
	}
	if len(parts[0]) < 2 || parts[0][1] != 'r' {
		// Only the read form replays state.
		return nil
	}

	for _, part := range parts[1:] {
		pin, err := strconv.Atoi(part)
		if err != nil {
			return errors.NewProtocolError("malformed pin in sync request", err)
		}
		key := models.PinKey{DeviceID: deviceID, Type: pinType, Pin: pin}

		if w := dash.FindWidgetByPin(deviceID, pinType, pin); w != nil {
			if w.IsSynchronizable() && w.Value != "" {
				conn.Send(protocol.NewMessage(protocol.CmdHardware, msgID, w.HardwareBody()))
			}
			continue
		}
		if value, ok := pins.Read(key); ok {
			conn.Send(protocol.NewMessage(protocol.CmdHardware, msgID, key.HardwareBody(value)))
		}
	}
	return nil
}

// AppSync replays the full dashboard state to one app connection on
// dashboard activation: synchronizable widget values for every device,
// then uncovered store entries. Unlike a hardware sync, property entries
// are included, pushed under the reserved property message id.
func AppSync(conn protocol.Conn, dash *models.Dashboard, pins *store.PinStorage) {
	covered := make(map[models.PinKey]struct{})

	for _, w := range dash.Widgets {
		if w.Type == models.WidgetRTC || !w.IsSynchronizable() {
			continue
		}
		covered[w.Key()] = struct{}{}
		if w.Value == "" {
			continue
		}
		body := w.Key().AppBody(dash.ID, w.Value)
		if err := conn.Send(protocol.NewMessage(protocol.CmdAppSync, 0, body)); err != nil {
			nuts.L.Debugf("[HardSync] app widget replay failed: %v", err)
			return
		}
	}

	pins.ForEach(func(key models.PinKey, value string) {
		if _, ok := covered[key]; ok {
			return
		}
		msgID := uint16(0)
		if key.IsProperty() {
			msgID = protocol.PropertyMessageID
		}
		if err := conn.Send(protocol.NewMessage(protocol.CmdAppSync, msgID, key.AppBody(dash.ID, value))); err != nil {
			nuts.L.Debugf("[HardSync] app store replay failed: %v", err)
		}
	})
}

// PinModeBody builds the pin-mode declaration line for a device: "pm"
// followed by each configured onboard pin's direction in ascending pin
// order. Recomputed from the current widget set on every call so hardware
// always receives the full, current mode map on (re)activation, never a
// diff. Returns "" when the device declares no onboard pins.
func PinModeBody(dash *models.Dashboard, deviceID int) string {
	modes := make(map[int]string)
	for _, w := range dash.Widgets {
		if w.DeviceID != deviceID {
			continue
		}
		mode := w.PinMode()
		if mode == "" {
			continue
		}
		if _, ok := modes[w.Pin]; !ok {
			modes[w.Pin] = mode
		}
	}
	if len(modes) == 0 {
		return ""
	}

	pinsInOrder := make([]int, 0, len(modes))
	for pin := range modes {
		pinsInOrder = append(pinsInOrder, pin)
	}
	sort.Ints(pinsInOrder)

	fields := make([]string, 0, 1+2*len(pinsInOrder))
	fields = append(fields, "pm")
	for _, pin := range pinsInOrder {
		fields = append(fields, strconv.Itoa(pin), modes[pin])
	}
	return protocol.Join(fields...)
}
