// FilePath: internal/tokens/tokens.go
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/itsatony/relayhub/internal/errors"
)

// TokenLength is the length of a provisioning token in hex characters.
const TokenLength = 32

// Assignment binds a token to the device it provisions.
type Assignment struct {
	Email    string `db:"email" json:"email"`
	DashID   int    `db:"dash_id" json:"dashId"`
	DeviceID int    `db:"device_id" json:"deviceId"`
}

// Manager holds the live token table. Hardware logins resolve against it
// on every connection, so lookups take a read lock only. Assigning a new
// token to a device revokes the device's previous token.
type Manager struct {
	mu      sync.RWMutex
	tokens  map[string]Assignment
	devices map[Assignment]string
}

// NewManager creates an empty token table.
func NewManager() *Manager {
	return &Manager{
		tokens:  make(map[string]Assignment),
		devices: make(map[Assignment]string),
	}
}

// Seed installs a previously issued token, used when loading persisted
// assignments at startup.
func (m *Manager) Seed(token string, a Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.devices[a]; ok {
		delete(m.tokens, old)
	}
	m.tokens[token] = a
	m.devices[a] = token
}

// Assign issues a fresh token for the device, revoking any previous one.
func (m *Manager) Assign(email string, dashID, deviceID int) (string, error) {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.NewInternalError("failed to generate token", err)
	}
	token := hex.EncodeToString(buf)

	m.Seed(token, Assignment{Email: email, DashID: dashID, DeviceID: deviceID})
	return token, nil
}

// Resolve looks up the assignment behind a presented token.
func (m *Manager) Resolve(token string) (Assignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.tokens[token]
	return a, ok
}

// Revoke invalidates a token. Connections already authenticated with it
// stay up; only new logins are refused.
func (m *Manager) Revoke(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)
	delete(m.devices, a)
	return true
}

// RevokeDevice invalidates the device's current token, if any.
func (m *Manager) RevokeDevice(email string, dashID, deviceID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := Assignment{Email: email, DashID: dashID, DeviceID: deviceID}
	token, ok := m.devices[a]
	if !ok {
		return false
	}
	delete(m.tokens, token)
	delete(m.devices, a)
	return true
}

// TokenFor returns the device's current token.
func (m *Manager) TokenFor(email string, dashID, deviceID int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.devices[Assignment{Email: email, DashID: dashID, DeviceID: deviceID}]
	return token, ok
}

// Count returns the number of live tokens.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
