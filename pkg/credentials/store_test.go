package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_RejectsInvalidBundle(t *testing.T) {
	_, err := NewStore(map[string]Bundle{
		"user_123": {PITToken: "pit-abc"}, // no location
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_123")
}

func TestResolve(t *testing.T) {
	store, err := NewStore(map[string]Bundle{
		"user_123": {PITToken: "pit-abc", LocationID: "loc-1", CalendarID: "cal-9"},
		"user_456": {PITToken: "pit-def", LocationID: "loc-2"},
	})
	require.NoError(t, err)

	a, err := store.Resolve("user_123")
	require.NoError(t, err)
	assert.Equal(t, "pit-abc", a.PITToken)
	assert.Equal(t, "cal-9", a.CalendarID)

	b, err := store.Resolve("user_456")
	require.NoError(t, err)
	assert.Equal(t, "loc-2", b.LocationID)

	// Tenants never see each other's bundles.
	assert.NotEqual(t, a.PITToken, b.PITToken)
}

func TestResolve_UnknownTenantFailsClosed(t *testing.T) {
	store, err := NewStore(map[string]Bundle{
		"user_123": {PITToken: "pit-abc", LocationID: "loc-1"},
	})
	require.NoError(t, err)

	bundle, err := store.Resolve("user_999")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, bundle.PITToken, "absence must never yield a usable bundle")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  user_123:
    ghl_pit_token: pit-abc
    ghl_location_id: loc-1
    ghl_calendar_id: cal-9
  user_456:
    ghl_pit_token: pit-def
    ghl_location_id: loc-2
`), 0o600))

	store, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_123", "user_456"}, store.TenantIDs())

	bundle, err := store.Resolve("user_123")
	require.NoError(t, err)
	assert.Equal(t, "cal-9", bundle.CalendarID)
}

func TestLoadFile_EmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants: {}\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GHL_PIT_TOKEN", "pit-env")
	t.Setenv("GHL_LOCATION_ID", "loc-env")
	t.Setenv("GHL_CALENDAR_ID", "")

	store, ok := FromEnv()
	require.True(t, ok)

	// The dev store serves any tenant ID the same bundle.
	for _, tenant := range []string{"user_123", "anyone"} {
		bundle, err := store.Resolve(tenant)
		require.NoError(t, err)
		assert.Equal(t, "pit-env", bundle.PITToken)
	}
}

func TestFromEnv_Unset(t *testing.T) {
	t.Setenv("GHL_PIT_TOKEN", "")
	t.Setenv("GHL_LOCATION_ID", "")

	_, ok := FromEnv()
	assert.False(t, ok)
}
