// FilePath: internal/router/router_test.go
package router

import (
	"errors"
	"sync"
	"testing"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     []protocol.Message
	failSend bool
}

func (c *fakeConn) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("dead peer")
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func testDash() *models.Dashboard {
	return &models.Dashboard{
		ID:       1,
		IsActive: true,
		Devices:  []*models.Device{{ID: 0}, {ID: 2}, {ID: 3}},
		Tags: []*models.Tag{
			{ID: 100_001, Name: "pumps", DeviceIDs: []int{2, 3}},
		},
		Widgets: []*models.Widget{
			{ID: 200_005, Type: models.WidgetDeviceSelector, SelectedDeviceID: 2},
			{ID: 200_006, Type: models.WidgetSlider, PinType: models.PinVirtual, Pin: 1},
		},
	}
}

func TestResolveTargets(t *testing.T) {
	dash := testDash()

	assert.Equal(t, []int{7}, ResolveTargets(dash, 7), "plain device id resolves to itself")
	assert.Equal(t, []int{2, 3}, ResolveTargets(dash, 100_001), "tag resolves to live membership")
	assert.Equal(t, []int{2}, ResolveTargets(dash, 200_005), "selector resolves to current selection")
	assert.Empty(t, ResolveTargets(dash, 100_999), "unknown tag resolves to empty set")
	assert.Empty(t, ResolveTargets(dash, 200_006), "selector id pointing at non-selector widget")
}

func TestBroadcastToAppsFramesAddress(t *testing.T) {
	sess := session.New("test@relayhub.local", &models.Profile{})
	defer sess.Close()
	app := &fakeConn{}
	sess.AttachApp(app, "uid-1")

	BroadcastToApps(sess, 1, 2, protocol.CmdHardware, 11, "vw\x001\x00230")

	msgs := app.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.CmdHardware, msgs[0].Command)
	assert.Equal(t, uint16(11), msgs[0].ID)
	assert.Equal(t, "1-2\x00vw\x001\x00230", msgs[0].Body)
}

func TestSendToHardwareTagFanOut(t *testing.T) {
	dash := testDash()
	sess := session.New("test@relayhub.local", &models.Profile{DashBoards: []*models.Dashboard{dash}})
	defer sess.Close()

	hw2, hw3 := &fakeConn{}, &fakeConn{}
	sess.AttachHardware(2, hw2)
	sess.AttachHardware(3, hw3)

	delivered := SendToHardware(sess, dash, 100_001, protocol.CmdHardware, 5, "vw\x001\x00230")
	assert.Equal(t, 2, delivered)
	require.Len(t, hw2.messages(), 1)
	require.Len(t, hw3.messages(), 1)
	assert.Equal(t, "vw\x001\x00230", hw2.messages()[0].Body, "hardware bodies carry no address prefix")
}

func TestSendToHardwareSkipsOfflineAndDead(t *testing.T) {
	dash := testDash()
	sess := session.New("test@relayhub.local", &models.Profile{DashBoards: []*models.Dashboard{dash}})
	defer sess.Close()

	dead := &fakeConn{failSend: true}
	sess.AttachHardware(2, dead)
	// device 3 has no connection at all

	delivered := SendToHardware(sess, dash, 100_001, protocol.CmdHardware, 5, "vw\x001\x001")
	assert.Equal(t, 0, delivered, "offline and dead devices are skipped silently")
}

func TestRouteDirections(t *testing.T) {
	dash := testDash()
	sess := session.New("test@relayhub.local", &models.Profile{DashBoards: []*models.Dashboard{dash}})
	defer sess.Close()

	app, hw := &fakeConn{}, &fakeConn{}
	sess.AttachApp(app, "uid-1")
	sess.AttachHardware(0, hw)

	Route(sess, dash, 0, protocol.CmdHardware, 1, "vw\x001\x0010", FromHardware)
	assert.Len(t, app.messages(), 1)
	assert.Empty(t, hw.messages(), "hardware-sourced payloads never echo back to hardware")

	Route(sess, dash, 0, protocol.CmdHardware, 2, "vw\x001\x0020", FromApp)
	assert.Len(t, hw.messages(), 1)
	assert.Len(t, app.messages(), 1, "app-sourced payloads do not fan out to apps")
}
