package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aiprl/april/pkg/agent"
	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/relay"
)

// --- Sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.TenantID == "" {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("tenantId is required"))
		return
	}

	// Create-or-fetch: repeated requests for a tenant return the same
	// session. An unknown tenant fails closed before a session exists.
	sess, err := s.sessions.GetOrCreate(req.TenantID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, err)
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessionId":         sess.ID,
		"tenantId":          sess.TenantID,
		"credentialsLoaded": true,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tenantID := r.URL.Query().Get("tenantId")
	sess, ok := s.sessions.Lookup(id, tenantID)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, fmt.Errorf("session not found"))
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"tenantId":  sess.TenantID,
		"createdAt": sess.CreatedAt,
		"state":     sess.State(),
	})
}

// --- Turns ---

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  string `json:"tenantId"`
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	// Unknown tenant or session is turn-fatal: a single terminal error
	// event in place of the normal stream, with no tool call ever issued.
	sess, ok := s.sessions.Lookup(req.SessionID, req.TenantID)
	if !ok {
		s.errorStream(w, fmt.Errorf("session not found for tenant %q; create one via POST /api/sessions", req.TenantID))
		return
	}

	slog.Info("Turn started", "sessionID", sess.ID, "tenantID", sess.TenantID)

	// The request context is the turn's lifetime: when the client aborts,
	// the loop's generator is torn down and no further tool calls start.
	events := s.loop.Run(r.Context(), sess, req.Message)
	if err := relay.Stream(w, events); err != nil {
		slog.Debug("Turn stream ended early", "sessionID", sess.ID, "error", err)
		// Drain so the loop goroutine observes cancellation and exits.
		for range events {
		}
		return
	}
	slog.Info("Turn complete", "sessionID", sess.ID)
}

// errorStream emits one terminal error event over the stream framing.
func (s *Server) errorStream(w http.ResponseWriter, err error) {
	slog.Error("Turn rejected", "error", err)
	events := make(chan agent.Event, 1)
	events <- agent.Event{Error: &agent.ErrorEvent{Message: err.Error()}}
	close(events)
	relay.Stream(w, events)
}
