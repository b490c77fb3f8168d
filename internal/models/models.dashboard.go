// FilePath: internal/models/models.dashboard.go
package models

import "time"

// Dashboard is a named collection of widgets and devices belonging to one
// account: the unit of sharing and synchronization.
type Dashboard struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	IsActive         bool       `json:"isActive"`
	IsAppConnectedOn bool       `json:"isAppConnectedOn"`
	Widgets          []*Widget  `json:"widgets,omitempty"`
	Devices          []*Device  `json:"devices,omitempty"`
	Tags             []*Tag     `json:"tags,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt,omitempty"`
}

// DeviceByID returns the device with the given id, or nil.
func (d *Dashboard) DeviceByID(id int) *Device {
	for _, dev := range d.Devices {
		if dev.ID == id {
			return dev
		}
	}
	return nil
}

// TagByID returns the tag with the given id, or nil.
func (d *Dashboard) TagByID(id int) *Tag {
	for _, t := range d.Tags {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// WidgetByID returns the widget with the given id, or nil.
func (d *Dashboard) WidgetByID(id int64) *Widget {
	for _, w := range d.Widgets {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// FindWidgetByPin returns the first widget bound to the given device, pin
// and pin type, or nil.
func (d *Dashboard) FindWidgetByPin(deviceID int, pinType PinType, pin int) *Widget {
	for _, w := range d.Widgets {
		if w.Pin == pin && w.Pin != NoPin && w.PinType == pinType && w.DeviceID == deviceID {
			return w
		}
	}
	return nil
}

func (d *Dashboard) widgetOfType(t WidgetType) *Widget {
	for _, w := range d.Widgets {
		if w.Type == t {
			return w
		}
	}
	return nil
}

// EventorWidget returns the dashboard's automation widget, or nil.
func (d *Dashboard) EventorWidget() *Widget { return d.widgetOfType(WidgetEventor) }

// NotificationWidget returns the dashboard's notification widget, or nil.
func (d *Dashboard) NotificationWidget() *Widget { return d.widgetOfType(WidgetNotification) }

// EmailWidget returns the dashboard's email widget, or nil.
func (d *Dashboard) EmailWidget() *Widget { return d.widgetOfType(WidgetEmail) }

// TwitterWidget returns the dashboard's twitter widget, or nil.
func (d *Dashboard) TwitterWidget() *Widget { return d.widgetOfType(WidgetTwitter) }

// AddWidget appends a widget, replacing any widget with the same id.
func (d *Dashboard) AddWidget(w *Widget) {
	for i, existing := range d.Widgets {
		if existing.ID == w.ID {
			d.Widgets[i] = w
			d.UpdatedAt = time.Now()
			return
		}
	}
	d.Widgets = append(d.Widgets, w)
	d.UpdatedAt = time.Now()
}

// RemoveWidget deletes the widget with the given id and reports whether it
// was present.
func (d *Dashboard) RemoveWidget(id int64) bool {
	for i, w := range d.Widgets {
		if w.ID == id {
			d.Widgets = append(d.Widgets[:i], d.Widgets[i+1:]...)
			d.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Profile is the full account state: every dashboard of one account.
type Profile struct {
	DashBoards []*Dashboard `json:"dashBoards"`
}

// DashByID returns the dashboard with the given id, or nil.
func (p *Profile) DashByID(id int) *Dashboard {
	for _, d := range p.DashBoards {
		if d.ID == id {
			return d
		}
	}
	return nil
}
