// FilePath: internal/server/server_test.go
package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/itsatony/relayhub/internal/config"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/presence"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/itsatony/relayhub/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeConn struct {
	mu     sync.Mutex
	sent   []protocol.Message
	onSend func(m protocol.Message)
	closed bool
}

func (c *probeConn) Send(m protocol.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, m)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	return nil
}

func (c *probeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *probeConn) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func (c *probeConn) last() protocol.Message {
	msgs := c.messages()
	return msgs[len(msgs)-1]
}

type sample struct {
	dashID int
	key    models.PinKey
	value  string
}

type fakeCollector struct {
	mu        sync.Mutex
	collected []sample
	deleted   []models.PinKey
}

func (f *fakeCollector) Collect(_ string, dashID int, key models.PinKey, _ time.Time, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collected = append(f.collected, sample{dashID: dashID, key: key, value: value})
}

func (f *fakeCollector) Delete(_ string, _ int, key models.PinKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	pushes []string
	mails  []string
	tweets []string
}

func (d *fakeDispatcher) SendPush(_ []string, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushes = append(d.pushes, message)
	return nil
}

func (d *fakeDispatcher) SendMail(to, subject, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mails = append(d.mails, to+"|"+subject)
	return nil
}

func (d *fakeDispatcher) SendTweet(_, _, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tweets = append(d.tweets, text)
	return nil
}

type fixture struct {
	srv        *Server
	sess       *session.Session
	dash       *models.Dashboard
	collector  *fakeCollector
	dispatcher *fakeDispatcher
}

func newFixture(t *testing.T, dash *models.Dashboard) *fixture {
	t.Helper()
	collector := &fakeCollector{}
	dispatcher := &fakeDispatcher{}
	registry := session.NewRegistry()
	t.Cleanup(registry.Close)

	srv := New(&config.Config{}, Deps{
		Registry:   registry,
		Tokens:     tokens.NewManager(),
		Presence:   presence.New(dispatcher),
		Dispatcher: dispatcher,
		Collector:  collector,
	})
	sess := registry.GetOrCreate("test@relayhub.local", func() *models.Profile {
		return &models.Profile{DashBoards: []*models.Dashboard{dash}}
	})
	return &fixture{srv: srv, sess: sess, dash: dash, collector: collector, dispatcher: dispatcher}
}

func relayDash() *models.Dashboard {
	return &models.Dashboard{
		ID:       1,
		IsActive: true,
		Devices:  []*models.Device{{ID: 0, Name: "boiler"}},
		Widgets: []*models.Widget{
			{ID: 10, Type: models.WidgetSlider, DeviceID: 0, PinType: models.PinVirtual, Pin: 4},
		},
	}
}

func vk(pin int) models.PinKey {
	return models.PinKey{DeviceID: 0, Type: models.PinVirtual, Pin: pin}
}

func TestApplyWriteStoreBeforeFanOut(t *testing.T) {
	f := newFixture(t, relayDash())

	var observed string
	app := &probeConn{}
	app.onSend = func(protocol.Message) {
		// At delivery time the store must already hold the new value.
		observed, _ = f.sess.PinStore(1).Read(vk(4))
	}
	f.sess.AttachApp(app, "uid")

	f.srv.applyWrite(f.sess, f.dash, 0, vk(4), "77", 9, true, false)

	require.Len(t, app.messages(), 1)
	assert.Equal(t, "77", observed)
	assert.Equal(t, "1-0\x00vw\x004\x0077", app.last().Body)
	assert.Equal(t, uint16(9), app.last().ID)
}

func TestApplyWriteMirrorsWidgetAndReports(t *testing.T) {
	f := newFixture(t, relayDash())

	f.srv.applyWrite(f.sess, f.dash, 0, vk(4), "200", 1, true, false)

	assert.Equal(t, "200", f.dash.WidgetByID(10).Value, "synchronizable widget mirrors the write")
	require.Len(t, f.collector.collected, 1)
	assert.Equal(t, sample{dashID: 1, key: vk(4), value: "200"}, f.collector.collected[0])
}

func TestApplyWriteInactiveDashboardSkipsApps(t *testing.T) {
	dash := relayDash()
	dash.IsActive = false
	f := newFixture(t, dash)

	app := &probeConn{}
	f.sess.AttachApp(app, "uid")

	f.srv.applyWrite(f.sess, f.dash, 0, vk(4), "1", 1, true, false)
	assert.Empty(t, app.messages(), "inactive dashboards receive no live pushes")
	assert.Len(t, f.collector.collected, 1, "reporting still records the write")
}

func TestRuleCascadeFansOutBothSides(t *testing.T) {
	dash := relayDash()
	dash.Widgets = append(dash.Widgets, &models.Widget{
		ID:   50,
		Type: models.WidgetEventor,
		Rules: []models.Rule{{
			TriggerPinType: models.PinVirtual,
			TriggerPin:     22,
			Condition:      models.Condition{Type: models.GreaterThan, Value: 37},
			Actions: []models.Action{{
				Type: models.ActionSetPin, PinType: models.PinVirtual, Pin: 5, Value: "1",
			}},
			IsActive: true,
		}},
	})
	f := newFixture(t, dash)

	app, hw := &probeConn{}, &probeConn{}
	f.sess.AttachApp(app, "uid")
	f.sess.AttachHardware(0, hw)

	f.srv.applyWrite(f.sess, f.dash, 0, vk(22), "38", 11, true, false)

	v, ok := f.sess.PinStore(1).Read(vk(5))
	require.True(t, ok, "rule action writes through the store")
	assert.Equal(t, "1", v)

	hwMsgs := hw.messages()
	require.Len(t, hwMsgs, 1, "triggering write stays app-side, only the action reaches hardware")
	assert.Equal(t, protocol.EventorMessageID, hwMsgs[0].ID)
	assert.Equal(t, "vw\x005\x001", hwMsgs[0].Body)

	appMsgs := app.messages()
	require.Len(t, appMsgs, 2)
	assert.Equal(t, uint16(11), appMsgs[0].ID)
	assert.Equal(t, protocol.EventorMessageID, appMsgs[1].ID, "cascaded write is marked rule-originated")
}

func TestHardwareHandleWriteAndPing(t *testing.T) {
	f := newFixture(t, relayDash())
	hwConn := &probeConn{}
	hc := &hardwareClient{srv: f.srv, conn: hwConn, sess: f.sess, dashID: 1, deviceID: 0}

	hc.handle(protocol.NewMessage(protocol.CmdPing, 3, ""))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(hwConn.last()))

	app := &probeConn{}
	f.sess.AttachApp(app, "uid")
	hc.handle(protocol.NewMessage(protocol.CmdHardware, 4, protocol.BodyFromSpaces("vw 4 123")))
	require.Len(t, app.messages(), 1)
	assert.Equal(t, "1-0\x00vw\x004\x00123", app.last().Body)

	v, _ := f.sess.PinStore(1).Read(vk(4))
	assert.Equal(t, "123", v)
}

func TestHardwareHandleMalformedWrite(t *testing.T) {
	f := newFixture(t, relayDash())
	hwConn := &probeConn{}
	hc := &hardwareClient{srv: f.srv, conn: hwConn, sess: f.sess, dashID: 1, deviceID: 0}

	for _, body := range []string{"", "v", "vw\x004", "xw\x004\x001", "vw\x00abc\x001"} {
		hc.handle(protocol.NewMessage(protocol.CmdHardware, 5, body))
		assert.Equal(t, protocol.StatusIllegalCommandBody, protocol.StatusOf(hwConn.last()), "body %q", body)
	}
	assert.Empty(t, f.collector.collected, "rejected writes never reach the store pipeline")
}

func TestHardwareSetPropertyStoredAndPushed(t *testing.T) {
	f := newFixture(t, relayDash())
	hwConn, app := &probeConn{}, &probeConn{}
	f.sess.AttachApp(app, "uid")
	hc := &hardwareClient{srv: f.srv, conn: hwConn, sess: f.sess, dashID: 1, deviceID: 0}

	hc.handle(protocol.NewMessage(protocol.CmdSetWidgetProperty, 6, protocol.BodyFromSpaces("4 label Pump")))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(hwConn.last()))
	assert.Equal(t, "Pump", f.dash.WidgetByID(10).Label)

	propKey := models.PinKey{DeviceID: 0, Type: models.PinVirtual, Pin: 4, Property: "label"}
	v, ok := f.sess.PinStore(1).Read(propKey)
	require.True(t, ok, "property pushes survive as store entries for replay")
	assert.Equal(t, "Pump", v)

	require.Len(t, app.messages(), 1)
	assert.Equal(t, protocol.CmdSetWidgetProperty, app.last().Command)

	hc.handle(protocol.NewMessage(protocol.CmdSetWidgetProperty, 7, protocol.BodyFromSpaces("4 bogus x")))
	assert.Equal(t, protocol.StatusIllegalCommandBody, protocol.StatusOf(hwConn.last()))
}

func TestHardwareSyncReplaysThroughHandler(t *testing.T) {
	f := newFixture(t, relayDash())
	f.sess.PinStore(1).Write(vk(30), "17")
	hwConn := &probeConn{}
	hc := &hardwareClient{srv: f.srv, conn: hwConn, sess: f.sess, dashID: 1, deviceID: 0}

	hc.handle(protocol.NewMessage(protocol.CmdHardwareSync, 8, ""))
	msgs := hwConn.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "vw\x0030\x0017", msgs[0].Body)
	assert.Equal(t, uint16(8), msgs[0].ID)
}

func TestHardwarePushNotification(t *testing.T) {
	dash := relayDash()
	dash.Widgets = append(dash.Widgets, &models.Widget{
		ID: 30, Type: models.WidgetNotification,
		PushTokens: map[string]string{"uid": "tok"},
	})
	f := newFixture(t, dash)
	hwConn := &probeConn{}
	hc := &hardwareClient{srv: f.srv, conn: hwConn, sess: f.sess, dashID: 1, deviceID: 0}

	hc.handle(protocol.NewMessage(protocol.CmdPushNotification, 9, "boiler hot"))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(hwConn.last()))
	assert.Equal(t, []string{"boiler hot"}, f.dispatcher.pushes)

	hc.handle(protocol.NewMessage(protocol.CmdPushNotification, 10, ""))
	assert.Equal(t, protocol.StatusIllegalCommandBody, protocol.StatusOf(hwConn.last()))
}

func TestAppActivateRepliesSyncAndPinModes(t *testing.T) {
	dash := relayDash()
	dash.IsActive = false
	dash.Widgets = append(dash.Widgets, &models.Widget{
		ID: 11, Type: models.WidgetButton, DeviceID: 0, PinType: models.PinDigital, Pin: 2, Value: "1",
	})
	f := newFixture(t, dash)

	appConn, hwConn := &probeConn{}, &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	f.sess.AttachHardware(0, hwConn)
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdActivateDashboard, 2, "1"))

	assert.True(t, dash.IsActive)
	msgs := appConn.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, protocol.CmdResponse, msgs[0].Command, "ack precedes the replay")
	assert.Equal(t, protocol.CmdAppSync, msgs[1].Command)

	hwMsgs := hwConn.messages()
	require.Len(t, hwMsgs, 1)
	assert.Equal(t, "pm\x002\x00out", hwMsgs[0].Body)
	assert.Equal(t, uint16(1), hwMsgs[0].ID)
}

func TestAppHardwareWriteRoutesToDevice(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn, hwConn := &probeConn{}, &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	f.sess.AttachHardware(0, hwConn)
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdHardware, 3, protocol.BodyFromSpaces("1-0 vw 4 55")))

	v, ok := f.sess.PinStore(1).Read(vk(4))
	require.True(t, ok)
	assert.Equal(t, "55", v)
	require.Len(t, hwConn.messages(), 1)
	assert.Equal(t, "vw\x004\x0055", hwConn.last().Body)
	assert.Empty(t, appConn.messages(), "successful writes are not acknowledged")
}

func TestAppHardwareWriteDeviceNotInNetwork(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn := &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdHardware, 3, protocol.BodyFromSpaces("1-0 vw 4 55")))
	assert.Equal(t, protocol.StatusDeviceNotInNetwork, protocol.StatusOf(appConn.last()))

	// The store write itself still happened; only delivery failed.
	v, ok := f.sess.PinStore(1).Read(vk(4))
	require.True(t, ok)
	assert.Equal(t, "55", v)
}

func TestAppHardwareMalformedValueFrame(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn, hwConn := &probeConn{}, &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	f.sess.AttachHardware(0, hwConn)
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	// A write without a value must be rejected, never relayed raw.
	ac.handle(protocol.NewMessage(protocol.CmdHardware, 3, protocol.BodyFromSpaces("1-0 vw 4")))
	assert.Equal(t, protocol.StatusIllegalCommandBody, protocol.StatusOf(appConn.last()))
	assert.Empty(t, hwConn.messages())
	_, ok := f.sess.PinStore(1).Read(vk(4))
	assert.False(t, ok)

	// Unknown pin operations are rejected the same way.
	ac.handle(protocol.NewMessage(protocol.CmdHardware, 4, protocol.BodyFromSpaces("1-0 vx 4 1")))
	assert.Equal(t, protocol.StatusIllegalCommandBody, protocol.StatusOf(appConn.last()))
	assert.Empty(t, hwConn.messages())
}

func TestAppHardwareReadRelayed(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn, hwConn := &probeConn{}, &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	f.sess.AttachHardware(0, hwConn)
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdHardware, 3, protocol.BodyFromSpaces("1-0 vr 4")))
	require.Len(t, hwConn.messages(), 1)
	assert.Equal(t, "vr\x004", hwConn.last().Body)
	assert.Empty(t, appConn.messages(), "relayed reads are not acknowledged")
}

func TestAppHardwareInactiveDashboard(t *testing.T) {
	dash := relayDash()
	dash.IsActive = false
	f := newFixture(t, dash)
	appConn := &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdHardware, 3, protocol.BodyFromSpaces("1-0 vw 4 55")))
	assert.Equal(t, protocol.StatusNoActiveDashboard, protocol.StatusOf(appConn.last()))
}

func TestAppAddPushTokenAndLogout(t *testing.T) {
	dash := relayDash()
	dash.Widgets = append(dash.Widgets, &models.Widget{ID: 30, Type: models.WidgetNotification})
	f := newFixture(t, dash)
	appConn := &probeConn{}
	f.sess.AttachApp(appConn, "uid-1")
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdAddPushToken, 4, protocol.BodyFromSpaces("1 uid-1 fcm-token")))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(appConn.messages()[0]))
	widget := dash.NotificationWidget()
	assert.Equal(t, "fcm-token", widget.PushTokens["uid-1"])

	ac.handle(protocol.NewMessage(protocol.CmdLogout, 5, ""))
	assert.NotContains(t, widget.PushTokens, "uid-1", "logout forgets the instance's push token")
	assert.Equal(t, 0, f.sess.AppCount())
	assert.True(t, appConn.closed)
}

func TestAppWidgetLifecycle(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn := &probeConn{}
	f.sess.AttachApp(appConn, "uid")
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	widgetJSON := `{"id":60,"type":"EVENTOR","deviceId":0,"pin":-1,` +
		`"rules":[{"triggerPinType":"VIRTUAL","triggerPin":9,` +
		`"condition":{"type":"GT","value":1},"actions":[{"type":"NOTIFY","value":"x"}],"isActive":true}]}`
	ac.handle(protocol.NewMessage(protocol.CmdCreateWidget, 6, protocol.Join("1", widgetJSON)))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(appConn.last()))
	require.NotNil(t, f.dash.EventorWidget())
	require.Len(t, f.dash.EventorWidget().Rules, 1)

	ac.handle(protocol.NewMessage(protocol.CmdDeleteWidget, 7, protocol.Join("1", "60")))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(appConn.last()))
	assert.Nil(t, f.dash.EventorWidget())

	ac.handle(protocol.NewMessage(protocol.CmdDeleteWidget, 8, protocol.Join("1", "60")))
	assert.Equal(t, protocol.StatusIllegalCommand, protocol.StatusOf(appConn.last()))
}

func TestAppGraphDelete(t *testing.T) {
	f := newFixture(t, relayDash())
	appConn := &probeConn{}
	ac := &appClient{srv: f.srv, conn: appConn, sess: f.sess}

	ac.handle(protocol.NewMessage(protocol.CmdGraphData, 9, protocol.BodyFromSpaces("1 0 v 4")))
	assert.Equal(t, protocol.StatusOK, protocol.StatusOf(appConn.last()))
	require.Len(t, f.collector.deleted, 1)
	assert.Equal(t, vk(4), f.collector.deleted[0])
}

type fakeProfileRepo struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (r *fakeProfileRepo) Load(_ context.Context, _ string) (*models.Profile, error) {
	return &models.Profile{}, nil
}

func (r *fakeProfileRepo) SaveRaw(_ context.Context, email string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[string][]byte)
	}
	r.saved[email] = append([]byte(nil), raw...)
	return nil
}

func (r *fakeProfileRepo) rawFor(email string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[email]
}

func TestFlushProfilesWritesBeforeReturning(t *testing.T) {
	repo := &fakeProfileRepo{}
	registry := session.NewRegistry()
	t.Cleanup(registry.Close)
	srv := New(&config.Config{}, Deps{
		Registry:   registry,
		Tokens:     tokens.NewManager(),
		Presence:   presence.New(&fakeDispatcher{}),
		Dispatcher: &fakeDispatcher{},
		Collector:  &fakeCollector{},
		Profiles:   repo,
	})
	registry.GetOrCreate("test@relayhub.local", func() *models.Profile {
		return &models.Profile{DashBoards: []*models.Dashboard{relayDash()}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.flushProfiles(ctx)

	raw := repo.rawFor("test@relayhub.local")
	require.NotEmpty(t, raw, "profile persisted by the time the flush returns")
	assert.Contains(t, string(raw), `"boiler"`)
}

func TestParseAppAddress(t *testing.T) {
	dashID, addr, err := parseAppAddress("1")
	require.NoError(t, err)
	assert.Equal(t, 1, dashID)
	assert.Equal(t, models.DefaultDeviceID, addr, "trailing device token is elidable")

	dashID, addr, err = parseAppAddress("2-100001")
	require.NoError(t, err)
	assert.Equal(t, 2, dashID)
	assert.Equal(t, 100001, addr)

	_, _, err = parseAppAddress("x-1")
	assert.Error(t, err)
	_, _, err = parseAppAddress("1-x")
	assert.Error(t, err)
}
