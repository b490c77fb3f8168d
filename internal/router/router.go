// FilePath: internal/router/router.go
package router

import (
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

// Source marks which side of the account a payload originated from.
type Source int

const (
	FromHardware Source = iota
	FromApp
)

func (s Source) String() string {
	if s == FromApp {
		return "app"
	}
	return "hardware"
}

// ResolveTargets expands an address token into the concrete device ids it
// currently stands for. A literal device id resolves to itself, a tag to
// its live membership and a device-selector widget to its current
// selection. An unknown tag or selector resolves to an empty set: the
// message is silently dropped, never an error.
func ResolveTargets(dash *models.Dashboard, addressID int) []int {
	switch models.AddressKindOf(addressID) {
	case models.AddressTag:
		if tag := dash.TagByID(addressID); tag != nil {
			return tag.DeviceIDs
		}
		return nil
	case models.AddressSelector:
		w := dash.WidgetByID(int64(addressID))
		if w != nil && w.Type == models.WidgetDeviceSelector {
			return []int{w.SelectedDeviceID}
		}
		return nil
	default:
		return []int{addressID}
	}
}

// BroadcastToApps pushes a hardware-side payload to every live app
// connection of the account, address-qualified with "dashId-deviceId"
// framing.
func BroadcastToApps(sess *session.Session, dashID, deviceID int, command uint8, msgID uint16, body string) {
	if sess.AppCount() == 0 {
		return
	}
	framed := protocol.Join(models.AppAddress(dashID, deviceID), body)
	sess.SendToApps(protocol.NewMessage(command, msgID, framed))
}

// SendToHardware resolves addressID and delivers the payload to the live
// hardware connection of every resolved device. Devices without a live
// connection are skipped — no queuing, no error to the sender. The number
// of actual deliveries is returned.
func SendToHardware(sess *session.Session, dash *models.Dashboard, addressID int, command uint8, msgID uint16, body string) int {
	delivered := 0
	for _, deviceID := range ResolveTargets(dash, addressID) {
		conn, ok := sess.HardwareFor(deviceID)
		if !ok {
			continue
		}
		if err := conn.Send(protocol.NewMessage(command, msgID, body)); err != nil {
			nuts.L.Debugf("[Router] %s: hardware %d unreachable: %v", sess.Email, deviceID, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Route resolves an address token and pushes a payload. FROM_HARDWARE
// payloads fan out to every app connection of the account; FROM_APP
// payloads go to the hardware connection of each resolved device id. The
// caller has already written the value to the store; routing has no side
// effect beyond delivery.
func Route(sess *session.Session, dash *models.Dashboard, addressID int, command uint8, msgID uint16, body string, source Source) int {
	if source == FromHardware {
		BroadcastToApps(sess, dash.ID, addressID, command, msgID, body)
		return sess.AppCount()
	}
	return SendToHardware(sess, dash, addressID, command, msgID, body)
}
