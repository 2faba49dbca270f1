// Package relay carries the agent's event sequence between server and
// client. The server side serializes each event into one SSE frame as it is
// produced; the client side reduces the incoming frame stream into live
// activity state.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/aiprl/april/pkg/agent"
)

// Author identifies the agent in outbound frames.
const Author = "april_agent"

// frame is the wire shape of one event: a content.parts array holding at
// most one of functionCall, functionResponse or text per part, with the
// partial flag at the top level.
type frame struct {
	Author  string        `json:"author,omitempty"`
	Partial bool          `json:"partial"`
	Error   bool          `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
	Content *frameContent `json:"content,omitempty"`
}

type frameContent struct {
	Parts []framePart `json:"parts"`
}

type framePart struct {
	FunctionCall     *agent.FunctionCallEvent     `json:"functionCall,omitempty"`
	FunctionResponse *agent.FunctionResponseEvent `json:"functionResponse,omitempty"`
	Text             string                       `json:"text,omitempty"`
}

// MarshalEvent serializes one event into its frame payload (the JSON after
// the "data:" prefix).
func MarshalEvent(ev agent.Event) ([]byte, error) {
	f := frame{Author: Author}
	switch {
	case ev.FunctionCall != nil:
		f.Content = &frameContent{Parts: []framePart{{FunctionCall: ev.FunctionCall}}}
	case ev.FunctionResponse != nil:
		f.Content = &frameContent{Parts: []framePart{{FunctionResponse: ev.FunctionResponse}}}
	case ev.Text != nil:
		f.Partial = ev.Text.Partial
		f.Content = &frameContent{Parts: []framePart{{Text: ev.Text.Content}}}
	case ev.Error != nil:
		f.Error = true
		f.Message = ev.Error.Message
		f.Content = &frameContent{Parts: []framePart{{Text: "Error: " + ev.Error.Message}}}
	default:
		return nil, fmt.Errorf("relay: event has no payload")
	}
	return json.Marshal(f)
}

// ParseFrame classifies one frame payload back into an event.
func ParseFrame(payload []byte) (agent.Event, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return agent.Event{}, fmt.Errorf("relay: parse frame: %w", err)
	}
	if f.Error {
		return agent.Event{Error: &agent.ErrorEvent{Message: f.Message}}, nil
	}
	if f.Content == nil || len(f.Content.Parts) == 0 {
		return agent.Event{}, fmt.Errorf("relay: frame has no parts")
	}
	part := f.Content.Parts[0]
	switch {
	case part.FunctionCall != nil:
		return agent.Event{FunctionCall: part.FunctionCall}, nil
	case part.FunctionResponse != nil:
		return agent.Event{FunctionResponse: part.FunctionResponse}, nil
	default:
		return agent.Event{Text: &agent.TextEvent{Content: part.Text, Partial: f.Partial}}, nil
	}
}
