// FilePath: internal/server/conn.go
package server

import (
	"net"
	"sync"
	"time"

	"github.com/itsatony/relayhub/internal/protocol"
)

// tcpConn wraps one framed TCP peer. Send is serialized with a mutex:
// the session loop, offline timers and the rule engine may all write to
// the same connection.
type tcpConn struct {
	nc           net.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newTCPConn(nc net.Conn, writeTimeout time.Duration) *tcpConn {
	return &tcpConn{nc: nc, writeTimeout: writeTimeout}
}

// Send writes one frame under the connection's write deadline.
func (c *tcpConn) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return protocol.WriteMessage(c.nc, m)
}

// Close closes the underlying socket. Idempotent; a superseded connection
// and its read loop may both close.
func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address for logs.
func (c *tcpConn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}
