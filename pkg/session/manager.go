// Package session maps tenants to reusable agent sessions. A session
// carries the tenant's resolved credentials in scoped state and the
// conversation history for the process lifetime. Sessions are in-memory
// only; nothing persists past the process.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"github.com/aiprl/april/pkg/credentials"
)

// Scoped state key suffixes. Every key is prefixed with "user:<tenantID>:"
// so no session can read another tenant's entries.
const (
	statePITToken   = "ghl_pit_token"
	stateLocationID = "ghl_location_id"
	stateCalendarID = "ghl_calendar_id"
)

// Session is one tenant's agent session.
type Session struct {
	ID        string
	TenantID  string
	CreatedAt time.Time

	mu      sync.Mutex
	state   map[string]string
	history []*genai.Content
	inTurn  bool
}

// stateKey namespaces a key to this session's tenant.
func (s *Session) stateKey(suffix string) string {
	return "user:" + s.TenantID + ":" + suffix
}

// Credentials rebuilds the bundle from this session's own scoped state.
// Tool invocations read credentials only through here; the credential store
// is never consulted after session creation.
func (s *Session) Credentials() (credentials.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := credentials.Bundle{
		PITToken:   s.state[s.stateKey(statePITToken)],
		LocationID: s.state[s.stateKey(stateLocationID)],
		CalendarID: s.state[s.stateKey(stateCalendarID)],
	}
	if !b.Valid() {
		return credentials.Bundle{}, fmt.Errorf("session %s: %w", s.ID, credentials.ErrNotFound)
	}
	return b, nil
}

// State returns a copy of the scoped state with secret-bearing values
// redacted, for introspection endpoints.
func (s *Session) State() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.state))
	for k, v := range s.state {
		if k == s.stateKey(statePITToken) {
			v = "(redacted)"
		}
		out[k] = v
	}
	return out
}

// History returns the conversation history accumulated so far.
func (s *Session) History() []*genai.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*genai.Content, len(s.history))
	copy(out, s.history)
	return out
}

// AppendHistory records the contents produced by a completed turn.
func (s *Session) AppendHistory(contents ...*genai.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, contents...)
}

// BeginTurn claims the session's single turn slot. It reports false when a
// turn is already in flight; sessions are single-turn-at-a-time.
func (s *Session) BeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTurn {
		return false
	}
	s.inTurn = true
	return true
}

// EndTurn releases the turn slot.
func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTurn = false
}

// Manager creates and caches sessions per tenant.
type Manager struct {
	store *credentials.Store

	mu       sync.Mutex
	byTenant map[string]*Session
	byID     map[string]*Session
}

func NewManager(store *credentials.Store) *Manager {
	return &Manager{
		store:    store,
		byTenant: make(map[string]*Session),
		byID:     make(map[string]*Session),
	}
}

// GetOrCreate returns the tenant's session, creating it on first request.
// Idempotent: a second call with the same tenant ID returns the same
// session ID. Credentials are resolved and written into scoped state here,
// at creation time, not lazily at first tool call; an unknown tenant fails
// with credentials.ErrNotFound before any session exists.
func (m *Manager) GetOrCreate(tenantID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.byTenant[tenantID]; ok {
		return sess, nil
	}

	bundle, err := m.store.Resolve(tenantID)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
		state:     make(map[string]string, 3),
	}
	sess.state[sess.stateKey(statePITToken)] = bundle.PITToken
	sess.state[sess.stateKey(stateLocationID)] = bundle.LocationID
	if bundle.CalendarID != "" {
		sess.state[sess.stateKey(stateCalendarID)] = bundle.CalendarID
	}

	m.byTenant[tenantID] = sess
	m.byID[sess.ID] = sess
	slog.Info("Created session", "sessionID", sess.ID, "tenantID", tenantID)
	return sess, nil
}

// Lookup finds a session by ID, verifying it belongs to the given tenant.
func (m *Manager) Lookup(sessionID, tenantID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[sessionID]
	if !ok || sess.TenantID != tenantID {
		return nil, false
	}
	return sess, true
}
