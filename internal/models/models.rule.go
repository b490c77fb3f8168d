// FilePath: internal/models/models.rule.go
package models

import "strings"

// ConditionType enumerates the closed condition set. Numeric conditions
// parse the value as a double; a failed parse fails the condition. The two
// string conditions compare the raw value.
type ConditionType string

const (
	GreaterThan        ConditionType = "GT"
	GreaterThanOrEqual ConditionType = "GTE"
	LessThan           ConditionType = "LT"
	LessThanOrEqual    ConditionType = "LTE"
	Equal              ConditionType = "EQ"
	NotEqual           ConditionType = "NEQ"
	Between            ConditionType = "BETWEEN"
	NotBetween         ConditionType = "NOT_BETWEEN"
	StringEqual        ConditionType = "STR_EQ"
	StringNotEqual     ConditionType = "STR_NEQ"
)

// Condition is one pure predicate over the triggering pin value.
type Condition struct {
	Type  ConditionType `json:"type"`
	Value float64       `json:"value,omitempty"`
	Min   float64       `json:"min,omitempty"`
	Max   float64       `json:"max,omitempty"`
	Text  string        `json:"text,omitempty"`
}

// Matches evaluates the condition against a raw pin value.
func (c Condition) Matches(raw string) bool {
	switch c.Type {
	case StringEqual:
		return raw == c.Text
	case StringNotEqual:
		return raw != c.Text
	}

	v, ok := ParseDouble(raw)
	if !ok {
		return false
	}
	switch c.Type {
	case GreaterThan:
		return v > c.Value
	case GreaterThanOrEqual:
		return v >= c.Value
	case LessThan:
		return v < c.Value
	case LessThanOrEqual:
		return v <= c.Value
	case Equal:
		return v == c.Value
	case NotEqual:
		return v != c.Value
	case Between:
		return c.Min <= v && v <= c.Max
	case NotBetween:
		return v < c.Min || v > c.Max
	}
	return false
}

// ActionType enumerates the closed action set.
type ActionType string

const (
	ActionSetPin ActionType = "SETPIN"
	ActionNotify ActionType = "NOTIFY"
	ActionMail   ActionType = "MAIL"
	ActionTwit   ActionType = "TWIT"
)

// Action is one rule consequence. For SETPIN, PinType/Pin address the
// target stream and Value is the literal or templated value to write. For
// the notification variants Value is the message text and Subject is the
// mail subject.
type Action struct {
	Type    ActionType `json:"type"`
	PinType PinType    `json:"pinType,omitempty"`
	Pin     int        `json:"pin,omitempty"`
	Value   string     `json:"value"`
	Subject string     `json:"subject,omitempty"`
}

// PinToken is the substitution token inside action values standing for the
// triggering pin's raw value.
const PinToken = "/pin/"

// FormatValue substitutes the trigger token in an action value.
func FormatValue(template, triggerValue string) string {
	return strings.ReplaceAll(template, PinToken, triggerValue)
}

// Rule is one automation rule: a trigger stream, a condition and an ordered
// action list. TriggerDeviceID is the optional owning-device filter; nil
// matches any device. Firing is edge-triggered on the condition's
// false-to-true transition; the latch lives outside the model, in the
// session's latch arena, so the rule itself stays immutable between widget
// updates.
type Rule struct {
	TriggerPinType  PinType   `json:"triggerPinType"`
	TriggerPin      int       `json:"triggerPin"`
	TriggerDeviceID *int      `json:"triggerDeviceId,omitempty"`
	Condition       Condition `json:"condition"`
	Actions         []Action  `json:"actions"`
	IsActive        bool      `json:"isActive"`
}

// Triggers reports whether a write to key from deviceID is relevant to this
// rule. A device filter mismatch skips the rule entirely, including its
// latch bookkeeping.
func (r *Rule) Triggers(key PinKey, deviceID int) bool {
	if key.IsProperty() {
		return false
	}
	if r.TriggerDeviceID != nil && *r.TriggerDeviceID != deviceID {
		return false
	}
	return r.TriggerPinType == key.Type && r.TriggerPin == key.Pin
}
