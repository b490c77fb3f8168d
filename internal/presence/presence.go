// FilePath: internal/presence/presence.go
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/notify"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/session"
	nuts "github.com/vaudience/go-nuts"
)

type timerKey struct {
	email    string
	dashID   int
	deviceID int
}

// Tracker observes hardware connection lifecycle, flips device status and
// emits debounced offline notifications. Timers are cancellable in O(1)
// and their bodies execute on the owning session's loop; cancellation is
// an idempotent no-op once a timer has fired.
type Tracker struct {
	dispatcher notify.Dispatcher
	events     *nuts.EventEmitter

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// New creates a tracker dispatching offline pushes through dispatcher.
func New(dispatcher notify.Dispatcher) *Tracker {
	return &Tracker{
		dispatcher: dispatcher,
		events:     nuts.NewEventEmitter(),
		timers:     make(map[timerKey]*time.Timer),
	}
}

// OnTransition registers a callback for "device.online" / "device.offline"
// events, invoked with the device's composite address. The handler signature
// must match the emitted arguments exactly.
func (t *Tracker) OnTransition(event string, handler func(address string)) {
	if _, err := t.events.On(event, "", handler); err != nil {
		nuts.L.Warnf("[Presence] registering %s listener failed: %v", event, err)
	}
}

// HardwareOnline marks the device online and cancels any pending offline
// notification for it. Runs on the session loop.
func (t *Tracker) HardwareOnline(sess *session.Session, dash *models.Dashboard, dev *models.Device) {
	dev.Status = models.StatusOnline
	dev.ConnectedAt = time.Now()

	t.cancel(timerKey{email: sess.Email, dashID: dash.ID, deviceID: dev.ID})

	address := models.AppAddress(dash.ID, dev.ID)
	sess.SendToApps(protocol.NewMessage(protocol.CmdDeviceConnected, 0, address))
	if err := t.events.Emit("device.online", address); err != nil {
		nuts.L.Warnf("[Presence] %s: online event listener failed: %v", sess.Email, err)
	}
	nuts.L.Infof("[Presence] %s: device %s online", sess.Email, address)
}

// HardwareOffline marks the device offline, pushes the status change to
// the account's apps and, when the dashboard's notification widget has
// offline alerting enabled, schedules the debounced push. If the device
// reconnects before the ignore period elapses the timer is cancelled and
// nothing is sent; otherwise exactly one notification goes out to every
// push token still registered with the notification widget.
func (t *Tracker) HardwareOffline(sess *session.Session, dash *models.Dashboard, dev *models.Device) {
	dev.Status = models.StatusOffline
	dev.DisconnectedAt = time.Now()

	address := models.AppAddress(dash.ID, dev.ID)
	sess.SendToApps(protocol.NewMessage(protocol.CmdDeviceOffline, 0, address))
	if err := t.events.Emit("device.offline", address); err != nil {
		nuts.L.Warnf("[Presence] %s: offline event listener failed: %v", sess.Email, err)
	}
	nuts.L.Infof("[Presence] %s: device %s offline", sess.Email, address)

	widget := dash.NotificationWidget()
	if widget == nil || !widget.NotifyWhenOffline {
		return
	}

	ignorePeriod := time.Duration(widget.NotifyWhenOfflineIgnorePeriod) * time.Millisecond
	if ignorePeriod < 0 {
		ignorePeriod = 0
	}

	key := timerKey{email: sess.Email, dashID: dash.ID, deviceID: dev.ID}
	timer := sess.Schedule(ignorePeriod, func() {
		t.cancel(key)
		if dev.Status != models.StatusOffline {
			return
		}
		tokens := make([]string, 0, len(widget.PushTokens))
		for _, token := range widget.PushTokens {
			tokens = append(tokens, token)
		}
		if len(tokens) == 0 {
			return
		}
		message := fmt.Sprintf("Your %s went offline.", dev.Name)
		if err := t.dispatcher.SendPush(tokens, message); err != nil {
			nuts.L.Warnf("[Presence] %s: offline push for device %d failed: %v", sess.Email, dev.ID, err)
		}
	})

	t.mu.Lock()
	if old, ok := t.timers[key]; ok {
		old.Stop()
	}
	t.timers[key] = timer
	t.mu.Unlock()
}

// CancelDevice invalidates any scheduled offline notification for the
// device, used on device or dashboard deletion.
func (t *Tracker) CancelDevice(email string, dashID, deviceID int) {
	t.cancel(timerKey{email: email, dashID: dashID, deviceID: deviceID})
}

func (t *Tracker) cancel(key timerKey) {
	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()
}

// Shutdown stops every pending timer; no notification fires after it
// returns.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()
}

// PendingTimers returns the number of scheduled offline notifications.
func (t *Tracker) PendingTimers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
