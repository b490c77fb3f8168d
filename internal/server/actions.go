// FilePath: internal/server/actions.go
package server

import (
	"time"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/router"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

// applyWrite is the single path every accepted pin write goes through:
// store first, then widget mirror and reporting, then fan-out, then rule
// evaluation. Returns the number of hardware deliveries when toHardware
// is set. Always runs on the owning session's loop.
func (s *Server) applyWrite(sess *session.Session, dash *models.Dashboard, deviceID int, key models.PinKey, value string, msgID uint16, toApps, toHardware bool) int {
	sess.PinStore(dash.ID).Write(key, value)
	if w := dash.FindWidgetByPin(deviceID, key.Type, key.Pin); w != nil && w.IsSynchronizable() {
		w.Value = value
	}
	s.collector.Collect(sess.Email, dash.ID, key, time.Now(), value)

	body := key.HardwareBody(value)
	delivered := 0
	if toApps && dash.IsActive {
		router.BroadcastToApps(sess, dash.ID, deviceID, protocol.CmdHardware, msgID, body)
	}
	if toHardware {
		delivered = router.SendToHardware(sess, dash, deviceID, protocol.CmdHardware, msgID, body)
	}

	if dash.IsActive {
		s.engine.OnWrite(sess, dash, deviceID, key, value)
	}
	return delivered
}

// SetPin executes a rule's pin action: the write cascades to both sides
// under the rule-engine message id and re-enters rule evaluation.
func (s *Server) SetPin(sess *session.Session, dash *models.Dashboard, deviceID int, pinType models.PinType, pin int, value string) {
	key := models.PinKey{DeviceID: deviceID, Type: pinType, Pin: pin}
	s.applyWrite(sess, dash, deviceID, key, value, protocol.EventorMessageID, true, true)
}

// Notify executes a rule's push action through the dashboard's
// notification widget.
func (s *Server) Notify(sess *session.Session, dash *models.Dashboard, text string) {
	widget := dash.NotificationWidget()
	if widget == nil || len(widget.PushTokens) == 0 {
		nuts.L.Debugf("[Server] %s: dash %d has no push targets, dropping rule notification", sess.Email, dash.ID)
		return
	}
	pushTokens := make([]string, 0, len(widget.PushTokens))
	for _, token := range widget.PushTokens {
		pushTokens = append(pushTokens, token)
	}
	if err := s.dispatcher.SendPush(pushTokens, text); err != nil {
		nuts.L.Warnf("[Server] %s: rule push failed: %v", sess.Email, err)
	}
}

// Mail executes a rule's mail action through the dashboard's email widget.
func (s *Server) Mail(sess *session.Session, dash *models.Dashboard, subject, body string) {
	widget := dash.EmailWidget()
	if widget == nil || widget.To == "" {
		nuts.L.Debugf("[Server] %s: dash %d has no mail target, dropping rule mail", sess.Email, dash.ID)
		return
	}
	if err := s.dispatcher.SendMail(widget.To, subject, body); err != nil {
		nuts.L.Warnf("[Server] %s: rule mail failed: %v", sess.Email, err)
	}
}

// Tweet executes a rule's tweet action through the dashboard's twitter
// widget.
func (s *Server) Tweet(sess *session.Session, dash *models.Dashboard, text string) {
	widget := dash.TwitterWidget()
	if widget == nil || widget.TwitterToken == "" || widget.TwitterSecret == "" {
		nuts.L.Debugf("[Server] %s: dash %d has no twitter credentials, dropping rule tweet", sess.Email, dash.ID)
		return
	}
	if err := s.dispatcher.SendTweet(widget.TwitterToken, widget.TwitterSecret, text); err != nil {
		nuts.L.Warnf("[Server] %s: rule tweet failed: %v", sess.Email, err)
	}
}
