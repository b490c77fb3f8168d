// FilePath: internal/session/session.go
package session

import (
	"sync"
	"time"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/protocol"
	"github.com/itsatony/relayhub/internal/store"
	nuts "github.com/vaudience/go-nuts"
)

const taskQueueSize = 256

// Session is the per-account unit of state and serialization: it owns the
// live hardware connections (one per device id), the set of app
// connections, the per-dashboard pin stores and the rule latch arenas. All
// mutations run on the session's single loop goroutine via Post, so store
// writes, router fan-out and rule evaluation for one account never race
// each other. Cross-account work is fully parallel.
type Session struct {
	Email   string
	Profile *models.Profile

	hardware map[int]protocol.Conn
	apps     map[protocol.Conn]string // conn -> app instance uid
	stores   map[int]*store.PinStorage
	latches  map[int][]bool

	tasks     chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a session for the given account and starts its loop.
func New(email string, profile *models.Profile) *Session {
	s := &Session{
		Email:    email,
		Profile:  profile,
		hardware: make(map[int]protocol.Conn),
		apps:     make(map[protocol.Conn]string),
		stores:   make(map[int]*store.PinStorage),
		latches:  make(map[int][]bool),
		tasks:    make(chan func(), taskQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-s.done:
			return
		}
	}
}

// Post schedules fn on the session loop. Tasks posted after Close are
// dropped.
func (s *Session) Post(fn func()) {
	select {
	case <-s.done:
	case s.tasks <- fn:
	}
}

// Schedule runs fn on the session loop after d. The returned timer cancels
// in O(1) via Stop; stopping an already-fired timer is a no-op.
func (s *Session) Schedule(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { s.Post(fn) })
}

// Close stops the loop and closes every attached connection. It waits for
// the loop goroutine to exit, so the connection maps are closed without
// racing in-flight tasks. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
		for _, conn := range s.hardware {
			conn.Close()
		}
		for conn := range s.apps {
			conn.Close()
		}
	})
}

// AttachHardware binds conn as the live connection of deviceID and returns
// the superseded connection, if one was live. The caller closes it; a
// device has at most one live hardware connection at any instant.
func (s *Session) AttachHardware(deviceID int, conn protocol.Conn) (old protocol.Conn, superseded bool) {
	old, superseded = s.hardware[deviceID]
	s.hardware[deviceID] = conn
	return old, superseded && old != conn
}

// DetachHardware removes conn if it is still the live connection of
// deviceID. A stale close of a superseded connection is ignored.
func (s *Session) DetachHardware(deviceID int, conn protocol.Conn) bool {
	if current, ok := s.hardware[deviceID]; ok && current == conn {
		delete(s.hardware, deviceID)
		return true
	}
	return false
}

// HardwareFor returns the live hardware connection of deviceID, if any.
func (s *Session) HardwareFor(deviceID int) (protocol.Conn, bool) {
	conn, ok := s.hardware[deviceID]
	return conn, ok
}

// HardwareCount returns the number of live hardware connections.
func (s *Session) HardwareCount() int { return len(s.hardware) }

// AttachApp adds an app connection with its app instance uid.
func (s *Session) AttachApp(conn protocol.Conn, uid string) {
	s.apps[conn] = uid
}

// DetachApp removes an app connection and returns its uid.
func (s *Session) DetachApp(conn protocol.Conn) (uid string, ok bool) {
	uid, ok = s.apps[conn]
	if ok {
		delete(s.apps, conn)
	}
	return uid, ok
}

// AppUID returns the app instance uid of conn.
func (s *Session) AppUID(conn protocol.Conn) (string, bool) {
	uid, ok := s.apps[conn]
	return uid, ok
}

// AppCount returns the number of live app connections.
func (s *Session) AppCount() int { return len(s.apps) }

// IsEmpty reports whether no connection of either side is attached.
func (s *Session) IsEmpty() bool { return len(s.hardware) == 0 && len(s.apps) == 0 }

// SendToApps pushes a message to every live app connection of the account.
func (s *Session) SendToApps(m protocol.Message) {
	for conn := range s.apps {
		if err := conn.Send(m); err != nil {
			nuts.L.Debugf("[Session] %s: dropping app push: %v", s.Email, err)
		}
	}
}

// ForEachApp visits every live app connection.
func (s *Session) ForEachApp(fn func(conn protocol.Conn, uid string)) {
	for conn, uid := range s.apps {
		fn(conn, uid)
	}
}

// PinStore returns the pin storage of a dashboard, creating it lazily.
func (s *Session) PinStore(dashID int) *store.PinStorage {
	ps, ok := s.stores[dashID]
	if !ok {
		ps = store.New()
		s.stores[dashID] = ps
	}
	return ps
}

// DropDashboard purges the pin storage and latch arena of a deleted
// dashboard.
func (s *Session) DropDashboard(dashID int) {
	delete(s.stores, dashID)
	delete(s.latches, dashID)
}

// Latches returns the rule latch arena of a dashboard, sized to n rules.
// A size change (rules added or removed) resets the arena: edge detection
// restarts from "condition was false".
func (s *Session) Latches(dashID, n int) []bool {
	arena, ok := s.latches[dashID]
	if !ok || len(arena) != n {
		arena = make([]bool, n)
		s.latches[dashID] = arena
	}
	return arena
}

// ResetLatches clears the latch arena of a dashboard, used when the
// automation widget is replaced.
func (s *Session) ResetLatches(dashID int) {
	delete(s.latches, dashID)
}
