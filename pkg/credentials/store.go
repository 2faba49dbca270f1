// Package credentials resolves tenant identities to the credential bundle
// needed to call GoHighLevel on that tenant's behalf. The store is built
// once at startup and is read-only afterwards, so concurrent lookups need
// no synchronization.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound indicates that a tenant has no stored credentials. Callers
// must fail closed on this; there is no default bundle.
var ErrNotFound = errors.New("credentials: tenant not found")

// Bundle is the per-tenant credential set. Bundles are never mutated after
// load; concurrent sessions for the same tenant share one bundle.
type Bundle struct {
	// PITToken is the GHL Private Integration Token.
	PITToken string `yaml:"ghl_pit_token"`
	// LocationID scopes calls to the tenant's GHL sub-account.
	LocationID string `yaml:"ghl_location_id"`
	// CalendarID optionally pins calendar tools to one calendar.
	CalendarID string `yaml:"ghl_calendar_id,omitempty"`
}

// Valid reports whether the bundle carries the fields every remote call
// requires.
func (b Bundle) Valid() bool {
	return b.PITToken != "" && b.LocationID != ""
}

// Store maps tenant IDs to bundles.
type Store struct {
	tenants map[string]Bundle
}

// NewStore builds a store from an explicit tenant table. Invalid bundles
// are rejected up front so a missing token can never surface later as an
// unauthenticated remote call.
func NewStore(tenants map[string]Bundle) (*Store, error) {
	for id, b := range tenants {
		if !b.Valid() {
			return nil, fmt.Errorf("credentials: tenant %q is missing ghl_pit_token or ghl_location_id", id)
		}
	}
	copied := make(map[string]Bundle, len(tenants))
	for id, b := range tenants {
		copied[id] = b
	}
	return &Store{tenants: copied}, nil
}

// LoadFile reads a YAML tenant table:
//
//	tenants:
//	  user_123:
//	    ghl_pit_token: pit-abc
//	    ghl_location_id: loc-1
//	    ghl_calendar_id: cal-9
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	var file struct {
		Tenants map[string]Bundle `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("credentials: %s declares no tenants", path)
	}
	return NewStore(file.Tenants)
}

// FromEnv builds a single-tenant dev store from GHL_PIT_TOKEN,
// GHL_LOCATION_ID and optional GHL_CALENDAR_ID, serving every tenant ID the
// same bundle. Returns ErrNotFound-compatible nil store if the variables
// are unset.
func FromEnv() (*Store, bool) {
	b := Bundle{
		PITToken:   os.Getenv("GHL_PIT_TOKEN"),
		LocationID: os.Getenv("GHL_LOCATION_ID"),
		CalendarID: os.Getenv("GHL_CALENDAR_ID"),
	}
	if !b.Valid() {
		return nil, false
	}
	return &Store{tenants: map[string]Bundle{"*": b}}, true
}

// TenantIDs lists the configured tenants in sorted order.
func (s *Store) TenantIDs() []string {
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the bundle for a tenant, or ErrNotFound. Absence is a
// distinct error, never an empty bundle.
func (s *Store) Resolve(tenantID string) (Bundle, error) {
	if b, ok := s.tenants[tenantID]; ok {
		return b, nil
	}
	// Wildcard entry from FromEnv dev mode.
	if b, ok := s.tenants["*"]; ok {
		return b, nil
	}
	return Bundle{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
}
