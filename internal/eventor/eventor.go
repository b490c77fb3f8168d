// FilePath: internal/eventor/eventor.go
package eventor

import (
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

// ActionSink receives the consequences of a fired rule. The server wires
// SetPin back into the store/router pipeline (so one triggering update can
// cascade into further broadcasts) and hands the notification variants to
// the outbound dispatcher. There is no cycle detection: a SetPin action
// targeting another rule's trigger pin cascades unbounded.
type ActionSink interface {
	SetPin(sess *session.Session, dash *models.Dashboard, deviceID int, pinType models.PinType, pin int, value string)
	Notify(sess *session.Session, dash *models.Dashboard, text string)
	Mail(sess *session.Session, dash *models.Dashboard, subject, body string)
	Tweet(sess *session.Session, dash *models.Dashboard, text string)
}

// Engine evaluates a dashboard's automation rules against the value
// stream. It is stateless apart from the latch arenas owned by the
// session, so it is shared across accounts; OnWrite always runs on the
// owning session's loop.
type Engine struct {
	sink ActionSink
}

// New creates an engine delivering rule consequences to sink.
func New(sink ActionSink) *Engine {
	return &Engine{sink: sink}
}

// OnWrite evaluates every rule of the dashboard against a store write of
// raw to key from deviceID. Firing is edge-triggered: actions run only on
// a false-to-true transition of the condition (or true on first
// observation), never while the condition stays true across repeated
// updates. Inactive rules keep their latch bookkeeping but never execute
// actions. A failing rule is skipped and logged; it never aborts the
// remaining rules or the triggering write.
func (e *Engine) OnWrite(sess *session.Session, dash *models.Dashboard, deviceID int, key models.PinKey, raw string) {
	ev := dash.EventorWidget()
	if ev == nil || len(ev.Rules) == 0 {
		return
	}

	latches := sess.Latches(dash.ID, len(ev.Rules))
	for i := range ev.Rules {
		rule := &ev.Rules[i]
		if !rule.Triggers(key, deviceID) {
			continue
		}

		isTrue := rule.Condition.Matches(raw)
		switch {
		case isTrue && !latches[i]:
			latches[i] = true
			if rule.IsActive {
				e.fire(sess, dash, deviceID, i, rule, raw)
			}
		case !isTrue:
			latches[i] = false
		}
	}
}

func (e *Engine) fire(sess *session.Session, dash *models.Dashboard, deviceID, ruleIndex int, rule *models.Rule, triggerValue string) {
	for _, action := range rule.Actions {
		value := models.FormatValue(action.Value, triggerValue)
		switch action.Type {
		case models.ActionSetPin:
			e.sink.SetPin(sess, dash, deviceID, action.PinType, action.Pin, value)
		case models.ActionNotify:
			e.sink.Notify(sess, dash, value)
		case models.ActionMail:
			e.sink.Mail(sess, dash, action.Subject, value)
		case models.ActionTwit:
			e.sink.Tweet(sess, dash, value)
		default:
			nuts.L.Warnf("[Eventor] %s: dash %d rule %d: skipping unknown action type %q",
				sess.Email, dash.ID, ruleIndex, action.Type)
		}
	}
}
