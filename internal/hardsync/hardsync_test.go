// FilePath: internal/hardsync/hardsync_test.go
package hardsync

import (
	"testing"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordConn struct {
	sent []protocol.Message
}

func (c *recordConn) Send(m protocol.Message) error {
	c.sent = append(c.sent, m)
	return nil
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) bodies() []string {
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, protocol.BodyToSpaces(m.Body))
	}
	return out
}

func vkey(device, pin int) models.PinKey {
	return models.PinKey{DeviceID: device, Type: models.PinVirtual, Pin: pin}
}

func syncDash() *models.Dashboard {
	return &models.Dashboard{
		ID:       1,
		IsActive: true,
		Devices:  []*models.Device{{ID: 0}, {ID: 1}},
		Widgets: []*models.Widget{
			{ID: 1, Type: models.WidgetSlider, DeviceID: 0, PinType: models.PinVirtual, Pin: 4, Value: "128"},
			{ID: 2, Type: models.WidgetButton, DeviceID: 0, PinType: models.PinDigital, Pin: 2, Value: "1"},
			{ID: 3, Type: models.WidgetRTC, DeviceID: 0, PinType: models.PinVirtual, Pin: 9, Value: "1234567"},
			{ID: 4, Type: models.WidgetGauge, DeviceID: 1, PinType: models.PinVirtual, Pin: 7, Value: "55"},
			{ID: 5, Type: models.WidgetDisplay, DeviceID: 0, PinType: models.PinVirtual, Pin: 8},
		},
	}
}

func TestSyncAllReplaysWidgetsThenStore(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	pins.Write(vkey(0, 4), "999")  // covered by widget 1, must not replay twice
	pins.Write(vkey(0, 30), "17")  // widget-less, replays from store
	pins.Write(vkey(1, 31), "18")  // other device
	pins.Write(models.PinKey{DeviceID: 0, Type: models.PinVirtual, Pin: 4, Property: "label"}, "Volume")

	conn := &recordConn{}
	SyncAll(conn, dash, pins, 0, 21)

	assert.Equal(t, []string{
		"vw 4 128", // widget values first, declaration order
		"dw 2 1",
		"vw 30 17", // then uncovered store entries, write order
	}, conn.bodies())
	for _, m := range conn.sent {
		assert.Equal(t, protocol.CmdHardware, m.Command)
		assert.Equal(t, uint16(21), m.ID)
	}
}

func TestSyncAllIdempotent(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	pins.Write(vkey(0, 30), "17")
	pins.Write(vkey(0, 31), "18")

	first, second := &recordConn{}, &recordConn{}
	SyncAll(first, dash, pins, 0, 1)
	SyncAll(second, dash, pins, 0, 1)
	assert.Equal(t, first.sent, second.sent, "no intervening writes, byte-identical replay")
}

func TestSyncAllReflectsInterleavedWrite(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	pins.Write(vkey(0, 30), "17")

	before := &recordConn{}
	SyncAll(before, dash, pins, 0, 1)

	pins.Write(vkey(0, 30), "99")
	after := &recordConn{}
	SyncAll(after, dash, pins, 0, 1)

	assert.Contains(t, after.bodies(), "vw 30 99")
	assert.NotEqual(t, before.sent, after.sent)
}

func TestSyncAllSkipsEmptyWidgetValueButStillCovers(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	// Widget 5 (pin 8) has no value; a stale store entry under its key
	// must not replay either.
	pins.Write(vkey(0, 8), "stale")

	conn := &recordConn{}
	SyncAll(conn, dash, pins, 0, 1)
	assert.NotContains(t, conn.bodies(), "vw 8 stale")
}

func TestSyncPinsPrefersWidgetValue(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	pins.Write(vkey(0, 4), "999")
	pins.Write(vkey(0, 22), "store-value")

	conn := &recordConn{}
	err := SyncPins(conn, dash, pins, 0, 7, protocol.BodyFromSpaces("vr 4 22 33"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"vw 4 128",          // widget value wins over store
		"vw 22 store-value", // store fallback
		// pin 33 has neither and is silently skipped
	}, conn.bodies())
}

func TestSyncPinsIgnoresWriteOps(t *testing.T) {
	dash := syncDash()
	conn := &recordConn{}
	err := SyncPins(conn, dash, store.New(), 0, 7, protocol.BodyFromSpaces("vw 4 1"))
	require.NoError(t, err)
	assert.Empty(t, conn.sent)
}

func TestSyncPinsMalformed(t *testing.T) {
	dash := syncDash()
	conn := &recordConn{}
	assert.Error(t, SyncPins(conn, dash, store.New(), 0, 7, "vr"))
	assert.Error(t, SyncPins(conn, dash, store.New(), 0, 7, protocol.BodyFromSpaces("xr 4")))
	assert.Error(t, SyncPins(conn, dash, store.New(), 0, 7, protocol.BodyFromSpaces("vr abc")))
}

func TestAppSyncIncludesProperties(t *testing.T) {
	dash := syncDash()
	pins := store.New()
	pins.Write(vkey(0, 30), "17")
	pins.Write(models.PinKey{DeviceID: 0, Type: models.PinVirtual, Pin: 30, Property: "color"}, "#FF0000")

	conn := &recordConn{}
	AppSync(conn, dash, pins)

	var propertyIDs, valueIDs []uint16
	for _, m := range conn.sent {
		assert.Equal(t, protocol.CmdAppSync, m.Command)
		if protocol.BodyToSpaces(m.Body) == "1-0 30 color #FF0000" {
			propertyIDs = append(propertyIDs, m.ID)
		} else {
			valueIDs = append(valueIDs, m.ID)
		}
	}
	require.Len(t, propertyIDs, 1, "property entries replay to the app")
	assert.Equal(t, protocol.PropertyMessageID, propertyIDs[0])
	for _, id := range valueIDs {
		assert.Equal(t, uint16(0), id)
	}
}

func TestAppSyncCoversAllDevices(t *testing.T) {
	dash := syncDash()
	conn := &recordConn{}
	AppSync(conn, dash, store.New())

	bodies := conn.bodies()
	assert.Contains(t, bodies, "1-0 vw 4 128")
	assert.Contains(t, bodies, "1-1 vw 7 55", "app sync spans every device of the dashboard")
}

func TestPinModeBodyAscendingOrder(t *testing.T) {
	dash := &models.Dashboard{
		ID: 1,
		Widgets: []*models.Widget{
			{ID: 1, Type: models.WidgetDisplay, DeviceID: 0, PinType: models.PinAnalog, Pin: 7},
			{ID: 2, Type: models.WidgetButton, DeviceID: 0, PinType: models.PinDigital, Pin: 2},
			{ID: 3, Type: models.WidgetSlider, DeviceID: 0, PinType: models.PinVirtual, Pin: 1},
			{ID: 4, Type: models.WidgetButton, DeviceID: 1, PinType: models.PinDigital, Pin: 9},
			{ID: 5, Type: models.WidgetGauge, DeviceID: 0, PinType: models.PinDigital, Pin: 2}, // duplicate pin, first wins
		},
	}

	assert.Equal(t, "pm 2 out 7 in", protocol.BodyToSpaces(PinModeBody(dash, 0)),
		"pins in ascending order, virtual pins excluded")
	assert.Equal(t, "pm 9 out", protocol.BodyToSpaces(PinModeBody(dash, 1)))
	assert.Equal(t, "", PinModeBody(dash, 2), "no onboard pins, no pm line")
}
