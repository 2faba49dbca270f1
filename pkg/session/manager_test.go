package session

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiprl/april/pkg/credentials"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := credentials.NewStore(map[string]credentials.Bundle{
		"user_123": {PITToken: "pit-abc", LocationID: "loc-1", CalendarID: "cal-9"},
		"user_456": {PITToken: "pit-def", LocationID: "loc-2"},
	})
	require.NoError(t, err)
	return NewManager(store)
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	m := newTestManager(t)

	first, err := m.GetOrCreate("user_123")
	require.NoError(t, err)
	second, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Same(t, first, second)
}

func TestGetOrCreate_UnknownTenant(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetOrCreate("user_999")
	require.ErrorIs(t, err, credentials.ErrNotFound)

	// No session may exist for a tenant that failed resolution.
	_, ok := m.Lookup("", "user_999")
	assert.False(t, ok)
}

func TestCredentials_ResolvedAtCreation(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	bundle, err := sess.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "pit-abc", bundle.PITToken)
	assert.Equal(t, "loc-1", bundle.LocationID)
	assert.Equal(t, "cal-9", bundle.CalendarID)
}

func TestCredentials_TenantIsolation(t *testing.T) {
	m := newTestManager(t)
	a, err := m.GetOrCreate("user_123")
	require.NoError(t, err)
	b, err := m.GetOrCreate("user_456")
	require.NoError(t, err)

	bundleA, err := a.Credentials()
	require.NoError(t, err)
	bundleB, err := b.Credentials()
	require.NoError(t, err)
	assert.NotEqual(t, bundleA.PITToken, bundleB.PITToken)

	// Every state key is namespaced to the owning tenant.
	for key := range a.State() {
		assert.Contains(t, key, "user:user_123:")
	}
	for key := range b.State() {
		assert.Contains(t, key, "user:user_456:")
	}
}

func TestState_RedactsToken(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	state := sess.State()
	assert.Equal(t, "(redacted)", state["user:user_123:ghl_pit_token"])
	assert.Equal(t, "loc-1", state["user:user_123:ghl_location_id"])
	for _, v := range state {
		assert.NotEqual(t, "pit-abc", v)
	}
}

func TestLookup(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	found, ok := m.Lookup(sess.ID, "user_123")
	require.True(t, ok)
	assert.Same(t, sess, found)

	// A session ID does not cross tenants.
	_, ok = m.Lookup(sess.ID, "user_456")
	assert.False(t, ok)

	_, ok = m.Lookup("nonexistent", "user_123")
	assert.False(t, ok)
}

func TestHistory_AppendAndCopy(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	assert.Empty(t, sess.History())

	sess.AppendHistory(
		&genai.Content{Role: "user", Parts: []genai.Part{genai.Text("hi")}},
		&genai.Content{Role: "model", Parts: []genai.Part{genai.Text("hello")}},
	)
	got := sess.History()
	require.Len(t, got, 2)

	// The returned slice is a copy; mutating it leaves the session intact.
	got[0] = nil
	assert.NotNil(t, sess.History()[0])
}

func TestTurnLatch(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.GetOrCreate("user_123")
	require.NoError(t, err)

	require.True(t, sess.BeginTurn())
	assert.False(t, sess.BeginTurn(), "second concurrent turn must be rejected")

	sess.EndTurn()
	assert.True(t, sess.BeginTurn())
	sess.EndTurn()
}
