// Package agent runs one user turn: it drives the model's function-calling
// loop against the bound tool set and emits the resulting event sequence as
// it is produced.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/ghl"
	"github.com/aiprl/april/pkg/models"
	"github.com/aiprl/april/pkg/session"
	"github.com/aiprl/april/pkg/tools"
)

// DefaultModel is the Gemini model the agent runs on unless configured
// otherwise.
const DefaultModel = "gemini-2.0-flash"

// maxToolRounds bounds model/tool round trips per turn so a model stuck in
// a call loop cannot spin forever.
const maxToolRounds = 8

// SystemInstruction is April's standing prompt.
const SystemInstruction = `You are April, an executive assistant for GoHighLevel CRM.

Rules:
1. Never ask users for technical details (IDs, timestamps, parameters). Figure them out yourself.
2. When asked for something, do it immediately; do not explain your process first.
3. Call get_current_datetime first whenever you need today's date or week bounds. Calendar tools take epoch-millisecond ranges.
4. Be concise. Use Markdown: bold for names, bullet points for lists.`

// Loop coordinates the model provider, the bound tools and the session for
// a single turn at a time.
type Loop struct {
	provider  models.Provider
	modelName string
	tools     []*tools.BoundTool
	system    string
}

func New(provider models.Provider, modelName string, bound []*tools.BoundTool) *Loop {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Loop{
		provider:  provider,
		modelName: modelName,
		tools:     bound,
		system:    SystemInstruction,
	}
}

// Run executes one user turn and returns its event channel. Events are
// emitted as produced, never buffered for the whole turn. Tool calls run
// sequentially; cancellation is cooperative and checked between tool calls,
// after which the channel closes without further remote calls and without
// committing the turn to session history.
func (l *Loop) Run(ctx context.Context, sess *session.Session, message string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		l.run(ctx, sess, message, events)
	}()
	return events
}

func (l *Loop) run(ctx context.Context, sess *session.Session, message string, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !sess.BeginTurn() {
		emit(errorEvent("a turn is already in flight for this session"))
		return
	}
	defer sess.EndTurn()

	creds, err := sess.Credentials()
	if err != nil {
		emit(errorEvent(err.Error()))
		return
	}

	userContent := &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(message)}}
	history := append(sess.History(), userContent)
	turn := []*genai.Content{userContent}
	decls := tools.Declarations(l.tools)

	var text strings.Builder

	for round := 0; round < maxToolRounds; round++ {
		stream, err := l.provider.Stream(ctx, l.modelName, l.system, decls, history)
		if err != nil {
			emit(errorEvent(fmt.Sprintf("model stream error: %v", err)))
			return
		}

		var calls []genai.FunctionCall
		roundStart := text.Len()
		for {
			resp, err := stream.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				stream.Close()
				emit(errorEvent(fmt.Sprintf("model response error: %v", err)))
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					switch p := part.(type) {
					case genai.Text:
						if p == "" {
							continue
						}
						text.WriteString(string(p))
						if !emit(textEvent(text.String(), true)) {
							stream.Close()
							return
						}
					case genai.FunctionCall:
						calls = append(calls, p)
					}
				}
			}
		}
		stream.Close()

		var parts []genai.Part
		if roundText := text.String()[roundStart:]; roundText != "" {
			parts = append(parts, genai.Text(roundText))
		}
		for _, c := range calls {
			parts = append(parts, c)
		}
		if len(parts) > 0 {
			modelContent := &genai.Content{Role: "model", Parts: parts}
			history = append(history, modelContent)
			turn = append(turn, modelContent)
		}

		if len(calls) == 0 {
			break
		}

		var respParts []genai.Part
		for _, call := range calls {
			// Cooperative cancellation point: no new bridge call starts
			// once the client has gone away.
			if ctx.Err() != nil {
				return
			}
			if !emit(callEvent(call.Name, call.Args)) {
				return
			}
			response := l.invoke(ctx, call, creds)
			if !emit(responseEvent(call.Name, response)) {
				return
			}
			respParts = append(respParts, genai.FunctionResponse{Name: call.Name, Response: response})
		}
		fnContent := &genai.Content{Role: "user", Parts: respParts}
		history = append(history, fnContent)
		turn = append(turn, fnContent)
	}

	if !emit(textEvent(text.String(), false)) {
		return
	}
	sess.AppendHistory(turn...)
}

// invoke runs one tool call and shapes its outcome into the response map
// fed back to the model. Transport, parse and remote errors become payload,
// not turn failures; the model decides whether to retry or narrate.
func (l *Loop) invoke(ctx context.Context, call genai.FunctionCall, creds credentials.Bundle) map[string]any {
	tool, ok := tools.Find(l.tools, call.Name)
	if !ok {
		slog.Warn("Unknown tool called", "tool", call.Name)
		return map[string]any{"error": fmt.Sprintf("tool %q not found", call.Name)}
	}

	slog.Info("Invoking tool", "tool", call.Name)
	raw, err := tool.Invoke(ctx, call.Args, creds)
	if err != nil {
		var toolErr *ghl.ToolError
		if errors.As(err, &toolErr) {
			slog.Error("Tool call failed", "tool", call.Name, "kind", toolErr.Kind, "code", toolErr.Code)
			resp := map[string]any{"error": toolErr.Message, "kind": string(toolErr.Kind)}
			if toolErr.Code != 0 {
				resp["code"] = toolErr.Code
			}
			return resp
		}
		slog.Error("Tool call failed", "tool", call.Name, "error", err)
		return map[string]any{"error": err.Error()}
	}

	// The payload passes through unmodified; non-object results are wrapped
	// so the model always sees a JSON object.
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject != nil {
		return asObject
	}
	var asAny any
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return map[string]any{"result": string(raw)}
	}
	return map[string]any{"result": asAny}
}
