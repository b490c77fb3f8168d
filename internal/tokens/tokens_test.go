// FilePath: internal/tokens/tokens_test.go
package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignResolve(t *testing.T) {
	m := NewManager()

	token, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)
	assert.Len(t, token, TokenLength)

	a, ok := m.Resolve(token)
	require.True(t, ok)
	assert.Equal(t, Assignment{Email: "a@relayhub.local", DashID: 1, DeviceID: 0}, a)

	_, ok = m.Resolve("deadbeef")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestReassignRevokesPreviousToken(t *testing.T) {
	m := NewManager()

	first, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)
	second, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, ok := m.Resolve(first)
	assert.False(t, ok, "reassignment invalidates the previous token")
	_, ok = m.Resolve(second)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestTokensAreUniquePerDevice(t *testing.T) {
	m := NewManager()

	t1, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)
	t2, err := m.Assign("a@relayhub.local", 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 2, m.Count())

	got, ok := m.TokenFor("a@relayhub.local", 1, 1)
	require.True(t, ok)
	assert.Equal(t, t2, got)
}

func TestRevoke(t *testing.T) {
	m := NewManager()

	token, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)

	assert.True(t, m.Revoke(token))
	assert.False(t, m.Revoke(token))
	_, ok := m.Resolve(token)
	assert.False(t, ok)
	_, ok = m.TokenFor("a@relayhub.local", 1, 0)
	assert.False(t, ok)
}

func TestRevokeDevice(t *testing.T) {
	m := NewManager()

	token, err := m.Assign("a@relayhub.local", 1, 0)
	require.NoError(t, err)

	assert.False(t, m.RevokeDevice("a@relayhub.local", 1, 9))
	assert.True(t, m.RevokeDevice("a@relayhub.local", 1, 0))
	_, ok := m.Resolve(token)
	assert.False(t, ok)
}

func TestSeed(t *testing.T) {
	m := NewManager()
	m.Seed("feedfacefeedfacefeedfacefeedface", Assignment{Email: "a@relayhub.local", DashID: 2, DeviceID: 3})

	a, ok := m.Resolve("feedfacefeedfacefeedfacefeedface")
	require.True(t, ok)
	assert.Equal(t, 2, a.DashID)

	// Seeding a newer token for the same device replaces the old one.
	m.Seed("0123456789abcdef0123456789abcdef", Assignment{Email: "a@relayhub.local", DashID: 2, DeviceID: 3})
	_, ok = m.Resolve("feedfacefeedfacefeedfacefeedface")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}
