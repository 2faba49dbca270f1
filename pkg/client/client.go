// Package client talks to the april server: session create-or-fetch plus
// the streamed turn endpoint, reduced into live activity state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aiprl/april/pkg/relay"
)

// Client is a thin HTTP client for the april API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: http.DefaultClient}
}

// SessionInfo is the session endpoint's response.
type SessionInfo struct {
	SessionID         string `json:"sessionId"`
	TenantID          string `json:"tenantId"`
	CredentialsLoaded bool   `json:"credentialsLoaded"`
}

// CreateSession creates or fetches the tenant's session.
func (c *Client) CreateSession(ctx context.Context, tenantID string) (SessionInfo, error) {
	body, _ := json.Marshal(map[string]string{"tenantId": tenantID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return SessionInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SessionInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SessionInfo{}, apiError(resp)
	}
	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session response: %w", err)
	}
	return info, nil
}

// Turn sends one user message and streams the turn's events through the
// reducer, invoking onUpdate after every transport chunk. Cancel ctx to
// abort mid-stream; the reducer then ends Idle with nothing committed and
// ErrAborted is returned.
func (c *Client) Turn(ctx context.Context, tenantID, sessionID, message string, reducer *relay.Reducer, onUpdate func(relay.ActivityState)) (relay.Message, error) {
	body, _ := json.Marshal(map[string]string{
		"tenantId":  tenantID,
		"sessionId": sessionID,
		"message":   message,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/turns", bytes.NewReader(body))
	if err != nil {
		return relay.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	reducer.Start()
	if onUpdate != nil {
		onUpdate(reducer.State())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		reducer.Abort()
		if ctx.Err() != nil {
			return relay.Message{}, ErrAborted
		}
		return relay.Message{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reducer.Abort()
		return relay.Message{}, apiError(resp)
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if feedErr := reducer.Feed(buf[:n]); feedErr != nil {
				reducer.Abort()
				return relay.Message{}, feedErr
			}
			if onUpdate != nil {
				onUpdate(reducer.State())
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			reducer.Abort()
			if ctx.Err() != nil {
				return relay.Message{}, ErrAborted
			}
			return relay.Message{}, fmt.Errorf("read turn stream: %w", err)
		}
	}

	return reducer.Complete(), nil
}

// ErrAborted reports a client-initiated mid-stream abort. Not a failure;
// the turn was cancelled cooperatively.
var ErrAborted = errors.New("client: turn aborted")

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server: %s (HTTP %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("server: HTTP %d", resp.StatusCode)
}
