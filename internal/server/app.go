// FilePath: internal/server/app.go
package server

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/itsatony/relayhub/internal/hardsync"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/router"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

// appClient is the per-connection state of one app peer.
type appClient struct {
	srv  *Server
	conn protocol.Conn
	sess *session.Session
}

func (s *Server) serveApp(nc net.Conn) {
	conn := newTCPConn(nc, s.cfg.Server.WriteTimeout)
	defer conn.Close()

	ac := &appClient{srv: s, conn: conn}
	for {
		nc.SetReadDeadline(time.Now().Add(s.cfg.Server.ReadTimeout))
		m, err := protocol.ReadMessage(nc)
		if err != nil {
			break
		}

		if ac.sess == nil {
			if m.Command != protocol.CmdLogin {
				conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
				continue
			}
			ac.login(m)
			continue
		}

		msg := m
		ac.sess.Post(func() { ac.handle(msg) })
	}

	if ac.sess != nil {
		sess := ac.sess
		sess.Post(func() {
			if _, ok := sess.DetachApp(conn); !ok {
				return
			}
			if sess.AppCount() > 0 {
				return
			}
			// Last app gone: tell interested hardware the screen went dark.
			for _, dash := range sess.Profile.DashBoards {
				if dash.IsActive && dash.IsAppConnectedOn {
					s.sendAppState(sess, dash, protocol.BodyAppDisconnected)
				}
			}
		})
	}
}

// login attaches the connection to the account's session. The login body
// carries email, credential and client metadata; the trailing field is
// the app instance uid used to key push tokens.
func (ac *appClient) login(m protocol.Message) {
	parts := protocol.Split(m.Body)
	if len(parts) < 2 || parts[0] == "" {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	email := strings.ToLower(parts[0])
	uid := ""
	if len(parts) >= 5 {
		uid = parts[len(parts)-1]
	}

	sess := ac.srv.registry.GetOrCreate(email, func() *models.Profile {
		return ac.srv.loadProfile(email)
	})
	ac.sess = sess

	conn, msgID, srv := ac.conn, m.ID, ac.srv
	sess.Post(func() {
		first := sess.AppCount() == 0
		sess.AttachApp(conn, uid)
		conn.Send(protocol.OK(msgID))
		nuts.L.Infof("[App] %s: app attached (uid=%s)", sess.Email, uid)

		if !first {
			return
		}
		for _, dash := range sess.Profile.DashBoards {
			if dash.IsActive && dash.IsAppConnectedOn {
				srv.sendAppState(sess, dash, protocol.BodyAppConnected)
			}
		}
	})
}

// sendAppState pushes the app-connected/-disconnected signal to every
// live hardware connection of the dashboard.
func (s *Server) sendAppState(sess *session.Session, dash *models.Dashboard, body string) {
	for _, dev := range dash.Devices {
		if conn, ok := sess.HardwareFor(dev.ID); ok {
			conn.Send(protocol.NewMessage(protocol.CmdInternal, protocol.InternalMessageID, body))
		}
	}
}

func (ac *appClient) handle(m protocol.Message) {
	switch m.Command {
	case protocol.CmdPing:
		ac.conn.Send(protocol.OK(m.ID))
	case protocol.CmdActivateDashboard:
		ac.handleActivate(m)
	case protocol.CmdDeactivateDashboard:
		ac.handleDeactivate(m)
	case protocol.CmdHardware:
		ac.handleHardware(m)
	case protocol.CmdAppSync:
		ac.handleAppSync(m)
	case protocol.CmdCreateWidget, protocol.CmdUpdateWidget:
		ac.handleSaveWidget(m)
	case protocol.CmdDeleteWidget:
		ac.handleDeleteWidget(m)
	case protocol.CmdAddPushToken:
		ac.handleAddPushToken(m)
	case protocol.CmdEmail:
		ac.handleTokenEmail(m)
	case protocol.CmdGraphData:
		ac.handleGraphDelete(m)
	case protocol.CmdLogout:
		ac.handleLogout(m)
	default:
		nuts.L.Debugf("[App] %s: unsupported command %d", ac.sess.Email, m.Command)
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommand))
	}
}

func (ac *appClient) dashFromBody(m protocol.Message, raw string) *models.Dashboard {
	dashID, err := strconv.Atoi(raw)
	if err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return nil
	}
	dash := ac.sess.Profile.DashByID(dashID)
	if dash == nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommand))
		return nil
	}
	return dash
}

// handleActivate marks the dashboard live, replays its full state to the
// requesting app and (re)announces pin modes to every online device.
func (ac *appClient) handleActivate(m protocol.Message) {
	dash := ac.dashFromBody(m, m.Body)
	if dash == nil {
		return
	}
	dash.IsActive = true
	ac.conn.Send(protocol.OK(m.ID))

	hardsync.AppSync(ac.conn, dash, ac.sess.PinStore(dash.ID))

	for _, dev := range dash.Devices {
		conn, ok := ac.sess.HardwareFor(dev.ID)
		if !ok {
			continue
		}
		if pm := hardsync.PinModeBody(dash, dev.ID); pm != "" {
			conn.Send(protocol.NewMessage(protocol.CmdHardware, 1, pm))
		}
		if dash.IsAppConnectedOn {
			conn.Send(protocol.NewMessage(protocol.CmdInternal, protocol.InternalMessageID, protocol.BodyAppConnected))
		}
	}
}

func (ac *appClient) handleDeactivate(m protocol.Message) {
	deactivate := func(dash *models.Dashboard) {
		if !dash.IsActive {
			return
		}
		dash.IsActive = false
		if dash.IsAppConnectedOn {
			ac.srv.sendAppState(ac.sess, dash, protocol.BodyAppDisconnected)
		}
	}

	if m.Body == "" {
		for _, dash := range ac.sess.Profile.DashBoards {
			deactivate(dash)
		}
		ac.conn.Send(protocol.OK(m.ID))
		return
	}
	dash := ac.dashFromBody(m, m.Body)
	if dash == nil {
		return
	}
	deactivate(dash)
	ac.conn.Send(protocol.OK(m.ID))
}

// parseAppAddress splits the composite "<dashId>[-<addressId>]" prefix of
// an app-side hardware frame. A missing address token means the default
// device.
func parseAppAddress(raw string) (dashID, addressID int, err error) {
	dashPart, addrPart, found := strings.Cut(raw, protocol.DeviceSeparator)
	if dashID, err = strconv.Atoi(dashPart); err != nil {
		return 0, 0, err
	}
	addressID = models.DefaultDeviceID
	if found {
		if addressID, err = strconv.Atoi(addrPart); err != nil {
			return 0, 0, err
		}
	}
	return dashID, addressID, nil
}

// handleHardware processes a value frame from the app: the address prefix
// is resolved (device, tag or selector), write ops go through the
// store/rules pipeline per resolved device, read requests are relayed.
// Only delivery failure is acknowledged; success is silent.
func (ac *appClient) handleHardware(m protocol.Message) {
	parts := protocol.SplitN(m.Body, 2)
	if len(parts) < 2 {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dashID, addressID, err := parseAppAddress(parts[0])
	if err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dash := ac.sess.Profile.DashByID(dashID)
	if dash == nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommand))
		return
	}
	if !dash.IsActive {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNoActiveDashboard))
		return
	}

	body := parts[1]
	sub := protocol.SplitN(body, 3)
	if len(sub) < 2 || len(sub[0]) < 2 {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pinType, ok := models.PinTypeOf(sub[0][0])
	if !ok {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	switch sub[0][1] {
	case 'w':
		if len(sub) < 3 {
			ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
			return
		}
		pin, err := strconv.Atoi(sub[1])
		if err != nil {
			ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
			return
		}
		delivered := 0
		for _, deviceID := range router.ResolveTargets(dash, addressID) {
			key := models.PinKey{DeviceID: deviceID, Type: pinType, Pin: pin}
			delivered += ac.srv.applyWrite(ac.sess, dash, deviceID, key, sub[2], m.ID, false, true)
		}
		if delivered == 0 {
			ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusDeviceNotInNetwork))
		}
	case 'r':
		if router.SendToHardware(ac.sess, dash, addressID, protocol.CmdHardware, m.ID, body) == 0 {
			ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusDeviceNotInNetwork))
		}
	default:
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
	}
}

// handleAppSync replays dashboard state to the requesting app: one
// dashboard when the body names it, the whole profile otherwise.
func (ac *appClient) handleAppSync(m protocol.Message) {
	if m.Body != "" {
		dash := ac.dashFromBody(m, m.Body)
		if dash == nil {
			return
		}
		ac.conn.Send(protocol.OK(m.ID))
		hardsync.AppSync(ac.conn, dash, ac.sess.PinStore(dash.ID))
		return
	}
	ac.conn.Send(protocol.OK(m.ID))
	for _, dash := range ac.sess.Profile.DashBoards {
		hardsync.AppSync(ac.conn, dash, ac.sess.PinStore(dash.ID))
	}
}

// handleSaveWidget creates or replaces a widget from its JSON body.
// Replacing the automation widget resets its rule latches; pin modes are
// re-announced so hardware picks up direction changes immediately.
func (ac *appClient) handleSaveWidget(m protocol.Message) {
	parts := protocol.SplitN(m.Body, 2)
	if len(parts) < 2 {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dash := ac.dashFromBody(m, parts[0])
	if dash == nil {
		return
	}

	var widget models.Widget
	if err := json.Unmarshal([]byte(parts[1]), &widget); err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	dash.AddWidget(&widget)
	if widget.Type == models.WidgetEventor {
		ac.sess.ResetLatches(dash.ID)
	}
	if dash.IsActive {
		if conn, ok := ac.sess.HardwareFor(widget.DeviceID); ok {
			if pm := hardsync.PinModeBody(dash, widget.DeviceID); pm != "" {
				conn.Send(protocol.NewMessage(protocol.CmdHardware, 1, pm))
			}
		}
	}
	ac.conn.Send(protocol.OK(m.ID))
}

func (ac *appClient) handleDeleteWidget(m protocol.Message) {
	parts := protocol.Split(m.Body)
	if len(parts) < 2 {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dash := ac.dashFromBody(m, parts[0])
	if dash == nil {
		return
	}
	widgetID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	widget := dash.WidgetByID(widgetID)
	if widget == nil || !dash.RemoveWidget(widgetID) {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommand))
		return
	}
	if widget.Type == models.WidgetEventor {
		ac.sess.ResetLatches(dash.ID)
	}
	ac.conn.Send(protocol.OK(m.ID))
}

// handleAddPushToken registers the app instance's push token with the
// dashboard's notification widget ("<dashId> <uid> <token>").
func (ac *appClient) handleAddPushToken(m protocol.Message) {
	parts := protocol.Split(m.Body)
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dash := ac.dashFromBody(m, parts[0])
	if dash == nil {
		return
	}
	widget := dash.NotificationWidget()
	if widget == nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	if widget.PushTokens == nil {
		widget.PushTokens = make(map[string]string)
	}
	widget.PushTokens[parts[1]] = parts[2]
	ac.conn.Send(protocol.OK(m.ID))
}

// handleTokenEmail mails the device's provisioning token to the account
// ("<dashId>" or "<dashId> <deviceId>").
func (ac *appClient) handleTokenEmail(m protocol.Message) {
	parts := protocol.Split(m.Body)
	dash := ac.dashFromBody(m, parts[0])
	if dash == nil {
		return
	}
	deviceID := models.DefaultDeviceID
	if len(parts) >= 2 {
		var err error
		if deviceID, err = strconv.Atoi(parts[1]); err != nil {
			ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
			return
		}
	}

	token, ok := ac.srv.tokens.TokenFor(ac.sess.Email, dash.ID, deviceID)
	if !ok {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}

	name := fmt.Sprintf("device %d", deviceID)
	if dev := dash.DeviceByID(deviceID); dev != nil && dev.Name != "" {
		name = dev.Name
	}
	subject := fmt.Sprintf("Auth token for %s of %s", name, dash.Name)
	body := fmt.Sprintf("Token: %s", token)
	if err := ac.srv.dispatcher.SendMail(ac.sess.Email, subject, body); err != nil {
		nuts.L.Warnf("[App] %s: token mail failed: %v", ac.sess.Email, err)
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	ac.conn.Send(protocol.OK(m.ID))
}

// handleGraphDelete purges the reporting history of one pin
// ("<dashId> <deviceId> <pinType> <pin>").
func (ac *appClient) handleGraphDelete(m protocol.Message) {
	parts := protocol.Split(m.Body)
	if len(parts) < 4 || parts[2] == "" {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	dash := ac.dashFromBody(m, parts[0])
	if dash == nil {
		return
	}
	deviceID, err := strconv.Atoi(parts[1])
	if err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pinType, ok := models.PinTypeOf(parts[2][0])
	if !ok {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pin, err := strconv.Atoi(parts[3])
	if err != nil {
		ac.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	ac.srv.collector.Delete(ac.sess.Email, dash.ID, models.PinKey{DeviceID: deviceID, Type: pinType, Pin: pin})
	ac.conn.Send(protocol.OK(m.ID))
}

// handleLogout detaches the app and forgets its push token so a logged
// out device stops receiving notifications.
func (ac *appClient) handleLogout(m protocol.Message) {
	uid := m.Body
	if uid == "" {
		uid, _ = ac.sess.AppUID(ac.conn)
	}
	if uid != "" {
		for _, dash := range ac.sess.Profile.DashBoards {
			if widget := dash.NotificationWidget(); widget != nil {
				delete(widget.PushTokens, uid)
			}
		}
	}
	ac.sess.DetachApp(ac.conn)
	ac.conn.Send(protocol.OK(m.ID))
	ac.conn.Close()
}
