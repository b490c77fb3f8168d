// FilePath: internal/server/hardware.go
package server

import (
	"net"
	"strconv"
	"time"

	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/hardsync"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/router"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

// Push and tweet bodies are capped like the downstream services cap them.
const (
	maxPushBodyLength  = 255
	maxTweetBodyLength = 280
)

// hardwareClient is the per-connection state of one hardware peer. The
// read loop is the only writer of its fields; after login every inbound
// frame is posted to the session loop.
type hardwareClient struct {
	srv      *Server
	conn     protocol.Conn
	remote   string
	sess     *session.Session
	dashID   int
	deviceID int
}

func (s *Server) serveHardware(nc net.Conn) {
	conn := newTCPConn(nc, s.cfg.Server.WriteTimeout)
	defer conn.Close()

	hc := &hardwareClient{srv: s, conn: conn, remote: conn.RemoteAddr()}
	for {
		nc.SetReadDeadline(time.Now().Add(s.cfg.Server.ReadTimeout))
		m, err := protocol.ReadMessage(nc)
		if err != nil {
			break
		}

		if hc.sess == nil {
			if m.Command != protocol.CmdLogin {
				conn.Send(protocol.NewResponse(m.ID, protocol.StatusInvalidToken))
				continue
			}
			hc.login(m)
			continue
		}

		msg := m
		hc.sess.Post(func() { hc.handle(msg) })
	}

	if hc.sess != nil {
		sess, dashID, deviceID := hc.sess, hc.dashID, hc.deviceID
		sess.Post(func() {
			// A superseded connection closing later must not flip the
			// device offline; DetachHardware only matches the live conn.
			if !sess.DetachHardware(deviceID, conn) {
				return
			}
			dash := sess.Profile.DashByID(dashID)
			if dash == nil {
				return
			}
			if dev := dash.DeviceByID(deviceID); dev != nil {
				s.presence.HardwareOffline(sess, dash, dev)
			}
		})
	}
}

// login resolves the provisioning token and attaches the connection as
// the device's single live hardware connection, superseding any previous
// one.
func (hc *hardwareClient) login(m protocol.Message) {
	token := protocol.Split(m.Body)[0]
	a, ok := hc.srv.tokens.Resolve(token)
	if !ok {
		nuts.L.Infof("[Hardware] Login with unknown token from %s", hc.remote)
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusInvalidToken))
		return
	}

	sess := hc.srv.registry.GetOrCreate(a.Email, func() *models.Profile {
		return hc.srv.loadProfile(a.Email)
	})
	hc.sess, hc.dashID, hc.deviceID = sess, a.DashID, a.DeviceID

	conn, msgID, srv := hc.conn, m.ID, hc.srv
	sess.Post(func() {
		dash := sess.Profile.DashByID(a.DashID)
		if dash == nil {
			conn.Send(protocol.NewResponse(msgID, protocol.StatusInvalidToken))
			conn.Close()
			return
		}
		dev := dash.DeviceByID(a.DeviceID)
		if dev == nil {
			conn.Send(protocol.NewResponse(msgID, protocol.StatusInvalidToken))
			conn.Close()
			return
		}

		if old, superseded := sess.AttachHardware(a.DeviceID, conn); superseded {
			nuts.L.Infof("[Hardware] %s: device %d relogin, superseding previous connection", sess.Email, a.DeviceID)
			old.Close()
		}
		srv.presence.HardwareOnline(sess, dash, dev)
		conn.Send(protocol.OK(msgID))

		if dash.IsActive {
			if pm := hardsync.PinModeBody(dash, a.DeviceID); pm != "" {
				conn.Send(protocol.NewMessage(protocol.CmdHardware, 1, pm))
			}
			if dash.IsAppConnectedOn && sess.AppCount() > 0 {
				conn.Send(protocol.NewMessage(protocol.CmdInternal, protocol.InternalMessageID, protocol.BodyAppConnected))
			}
		}
	})
}

func (hc *hardwareClient) handle(m protocol.Message) {
	sess := hc.sess
	dash := sess.Profile.DashByID(hc.dashID)
	if dash == nil {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusServerError))
		return
	}

	switch m.Command {
	case protocol.CmdPing:
		hc.conn.Send(protocol.OK(m.ID))
	case protocol.CmdHardware:
		hc.handleHardware(m, dash)
	case protocol.CmdHardwareSync:
		hc.handleSync(m, dash)
	case protocol.CmdSetWidgetProperty:
		hc.handleSetProperty(m, dash)
	case protocol.CmdPushNotification:
		hc.handlePush(m, dash)
	case protocol.CmdEmail:
		hc.handleEmail(m, dash)
	case protocol.CmdTweet:
		hc.handleTweet(m, dash)
	case protocol.CmdInternal:
		hc.conn.Send(protocol.OK(m.ID))
	default:
		nuts.L.Debugf("[Hardware] %s: unsupported command %d", sess.Email, m.Command)
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommand))
	}
}

// handleHardware processes a value frame from the device. Write ops go
// through the store/fan-out/rules pipeline; read requests are relayed to
// the account's apps untouched.
func (hc *hardwareClient) handleHardware(m protocol.Message, dash *models.Dashboard) {
	parts := protocol.SplitN(m.Body, 3)
	if len(parts) < 2 || len(parts[0]) < 2 {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pinType, ok := models.PinTypeOf(parts[0][0])
	if !ok {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pin, err := strconv.Atoi(parts[1])
	if err != nil {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	switch parts[0][1] {
	case 'w':
		if len(parts) < 3 {
			hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
			return
		}
		key := models.PinKey{DeviceID: hc.deviceID, Type: pinType, Pin: pin}
		hc.srv.applyWrite(hc.sess, dash, hc.deviceID, key, parts[2], m.ID, true, false)
	case 'r':
		if dash.IsActive {
			router.BroadcastToApps(hc.sess, dash.ID, hc.deviceID, protocol.CmdHardware, m.ID, m.Body)
		}
	default:
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
	}
}

func (hc *hardwareClient) handleSync(m protocol.Message, dash *models.Dashboard) {
	pins := hc.sess.PinStore(dash.ID)
	if m.Body == "" {
		hardsync.SyncAll(hc.conn, dash, pins, hc.deviceID, m.ID)
		return
	}
	if err := hardsync.SyncPins(hc.conn, dash, pins, hc.deviceID, m.ID, m.Body); err != nil {
		hc.conn.Send(protocol.NewResponse(m.ID, errors.WireStatus(err)))
	}
}

// handleSetProperty stores a widget property push ("<pin> <property>
// <value>") and mirrors it to the apps. The property entry is a distinct
// store key and never collides with the pin's value entry.
func (hc *hardwareClient) handleSetProperty(m protocol.Message, dash *models.Dashboard) {
	parts := protocol.SplitN(m.Body, 3)
	if len(parts) < 3 || parts[2] == "" {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	pin, err := strconv.Atoi(parts[0])
	if err != nil || !models.ValidWidgetProperty(parts[1]) {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	if w := dash.FindWidgetByPin(hc.deviceID, models.PinVirtual, pin); w != nil {
		if err := w.SetProperty(parts[1], parts[2]); err != nil {
			hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
			return
		}
	}

	key := models.PinKey{DeviceID: hc.deviceID, Type: models.PinVirtual, Pin: pin, Property: parts[1]}
	hc.sess.PinStore(dash.ID).Write(key, parts[2])
	if dash.IsActive {
		router.BroadcastToApps(hc.sess, dash.ID, hc.deviceID, protocol.CmdSetWidgetProperty, m.ID, m.Body)
	}
	hc.conn.Send(protocol.OK(m.ID))
}

func (hc *hardwareClient) handlePush(m protocol.Message, dash *models.Dashboard) {
	if m.Body == "" || len(m.Body) > maxPushBodyLength {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	widget := dash.NotificationWidget()
	if widget == nil || len(widget.PushTokens) == 0 {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	pushTokens := make([]string, 0, len(widget.PushTokens))
	for _, token := range widget.PushTokens {
		pushTokens = append(pushTokens, token)
	}
	if err := hc.srv.dispatcher.SendPush(pushTokens, m.Body); err != nil {
		nuts.L.Warnf("[Hardware] %s: push failed: %v", hc.sess.Email, err)
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	hc.conn.Send(protocol.OK(m.ID))
}

// handleEmail accepts "<subject> <body>" using the email widget's
// configured recipient, or the explicit "<to> <subject> <body>" form.
func (hc *hardwareClient) handleEmail(m protocol.Message, dash *models.Dashboard) {
	widget := dash.EmailWidget()
	if widget == nil {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}

	parts := protocol.SplitN(m.Body, 3)
	var to, subject, body string
	switch {
	case len(parts) == 3:
		to, subject, body = parts[0], parts[1], parts[2]
	case len(parts) == 2 && widget.To != "":
		to, subject, body = widget.To, parts[0], parts[1]
	default:
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}

	if err := hc.srv.dispatcher.SendMail(to, subject, body); err != nil {
		nuts.L.Warnf("[Hardware] %s: mail failed: %v", hc.sess.Email, err)
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	hc.conn.Send(protocol.OK(m.ID))
}

func (hc *hardwareClient) handleTweet(m protocol.Message, dash *models.Dashboard) {
	if m.Body == "" || len(m.Body) > maxTweetBodyLength {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusIllegalCommandBody))
		return
	}
	widget := dash.TwitterWidget()
	if widget == nil || widget.TwitterToken == "" || widget.TwitterSecret == "" {
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	if err := hc.srv.dispatcher.SendTweet(widget.TwitterToken, widget.TwitterSecret, m.Body); err != nil {
		nuts.L.Warnf("[Hardware] %s: tweet failed: %v", hc.sess.Email, err)
		hc.conn.Send(protocol.NewResponse(m.ID, protocol.StatusNotAllowed))
		return
	}
	hc.conn.Send(protocol.OK(m.ID))
}
