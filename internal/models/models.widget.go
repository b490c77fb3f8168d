// FilePath: internal/models/models.widget.go
package models

import (
	"fmt"
	"strconv"
)

// WidgetType discriminates the widget variants this core cares about.
// Anything not listed here is routed and stored but never replayed.
type WidgetType string

const (
	WidgetButton         WidgetType = "BUTTON"
	WidgetSlider         WidgetType = "SLIDER"
	WidgetStep           WidgetType = "STEP"
	WidgetTimer          WidgetType = "TIMER"
	WidgetDisplay        WidgetType = "DISPLAY"
	WidgetLCD            WidgetType = "LCD"
	WidgetGauge          WidgetType = "GAUGE"
	WidgetTerminal       WidgetType = "TERMINAL"
	WidgetRTC            WidgetType = "RTC"
	WidgetDeviceSelector WidgetType = "DEVICE_SELECTOR"
	WidgetEventor        WidgetType = "EVENTOR"
	WidgetNotification   WidgetType = "NOTIFICATION"
	WidgetEmail          WidgetType = "EMAIL"
	WidgetTwitter        WidgetType = "TWITTER"
)

// NoPin marks a widget without an assigned pin.
const NoPin = -1

// Widget is one dashboard element. The struct is the superset of the
// variant fields; Type decides which of them are meaningful.
type Widget struct {
	ID       int64      `json:"id"`
	Type     WidgetType `json:"type"`
	Label    string     `json:"label,omitempty"`
	Color    string     `json:"color,omitempty"`
	URL      string     `json:"url,omitempty"`
	DeviceID int        `json:"deviceId"`
	PinType  PinType    `json:"pinType,omitempty"`
	Pin      int        `json:"pin"`
	Value    string     `json:"value,omitempty"`
	Min      float64    `json:"min,omitempty"`
	Max      float64    `json:"max,omitempty"`
	OnLabel  string     `json:"onLabel,omitempty"`
	OffLabel string     `json:"offLabel,omitempty"`
	Fraction int        `json:"maximumFractionDigits,omitempty"`

	// DEVICE_SELECTOR: the currently selected device and the assignable set.
	SelectedDeviceID int   `json:"selectedDeviceId,omitempty"`
	DeviceIDs        []int `json:"deviceIds,omitempty"`

	// NOTIFICATION: offline alerting configuration and registered push
	// tokens keyed by app instance uid.
	NotifyWhenOffline             bool              `json:"notifyWhenOffline,omitempty"`
	NotifyWhenOfflineIgnorePeriod int64             `json:"notifyWhenOfflineIgnorePeriod,omitempty"`
	PushTokens                    map[string]string `json:"pushTokens,omitempty"`

	// EMAIL / TWITTER delivery targets.
	To            string `json:"to,omitempty"`
	TwitterToken  string `json:"twitterToken,omitempty"`
	TwitterSecret string `json:"twitterSecret,omitempty"`

	// EVENTOR automation rules, evaluated in declared order.
	Rules []Rule `json:"rules,omitempty"`
}

// IsSynchronizable reports whether the widget can replay its state on a
// sync request. The RTC widget is deliberately excluded: replaying a clock
// value would desynchronize the requesting clock.
func (w *Widget) IsSynchronizable() bool {
	switch w.Type {
	case WidgetButton, WidgetSlider, WidgetStep, WidgetTimer,
		WidgetDisplay, WidgetLCD, WidgetGauge, WidgetTerminal:
		return w.Pin != NoPin
	}
	return false
}

// PinMode returns the hardware pin direction declared by this widget, or ""
// when the widget declares none (virtual pins and pinless widgets).
func (w *Widget) PinMode() string {
	if w.Pin == NoPin || w.PinType == PinVirtual {
		return ""
	}
	switch w.Type {
	case WidgetButton, WidgetSlider, WidgetStep, WidgetTimer, WidgetTerminal:
		return "out"
	case WidgetDisplay, WidgetLCD, WidgetGauge:
		return "in"
	}
	return ""
}

// Key returns the pin key the widget is bound to.
func (w *Widget) Key() PinKey {
	return PinKey{DeviceID: w.DeviceID, Type: w.PinType, Pin: w.Pin}
}

// HardwareBody renders the widget's current value as a hardware write body.
func (w *Widget) HardwareBody() string {
	return w.Key().HardwareBody(w.Value)
}

// Widget property names settable over the wire.
const (
	PropertyLabel    = "label"
	PropertyColor    = "color"
	PropertyMin      = "min"
	PropertyMax      = "max"
	PropertyOnLabel  = "onLabel"
	PropertyOffLabel = "offLabel"
	PropertyFraction = "fraction"
	PropertyURL      = "url"
)

var widgetProperties = map[string]struct{}{
	PropertyLabel:    {},
	PropertyColor:    {},
	PropertyMin:      {},
	PropertyMax:      {},
	PropertyOnLabel:  {},
	PropertyOffLabel: {},
	PropertyFraction: {},
	PropertyURL:      {},
}

// ValidWidgetProperty reports whether name is a settable widget property.
func ValidWidgetProperty(name string) bool {
	_, ok := widgetProperties[name]
	return ok
}

// SetProperty applies a property push to the widget.
func (w *Widget) SetProperty(name, value string) error {
	switch name {
	case PropertyLabel:
		w.Label = value
	case PropertyColor:
		w.Color = value
	case PropertyURL:
		w.URL = value
	case PropertyOnLabel:
		w.OnLabel = value
	case PropertyOffLabel:
		w.OffLabel = value
	case PropertyMin:
		v, ok := ParseDouble(value)
		if !ok {
			return fmt.Errorf("non-numeric min %q", value)
		}
		w.Min = v
	case PropertyMax:
		v, ok := ParseDouble(value)
		if !ok {
			return fmt.Errorf("non-numeric max %q", value)
		}
		w.Max = v
	case PropertyFraction:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("non-numeric fraction %q", value)
		}
		w.Fraction = v
	default:
		return fmt.Errorf("unknown widget property %q", name)
	}
	return nil
}
