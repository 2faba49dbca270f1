package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/ghl"
	"github.com/aiprl/april/pkg/models"
	"github.com/aiprl/april/pkg/session"
	"github.com/aiprl/april/pkg/tools"
)

type fakeStream struct {
	chunks []*genai.GenerateContentResponse
	i      int
}

func (s *fakeStream) Next() (*genai.GenerateContentResponse, error) {
	if s.i >= len(s.chunks) {
		return nil, iterator.Done
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeProvider scripts one chunk sequence per model round and records the
// history each round was given.
type fakeProvider struct {
	rounds    [][]*genai.GenerateContentResponse
	histories [][]*genai.Content
}

func (p *fakeProvider) List(ctx context.Context) ([]string, error) {
	return []string{"fake-model"}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, modelName, system string, decls []*genai.Tool, history []*genai.Content) (models.Stream, error) {
	round := len(p.histories)
	p.histories = append(p.histories, history)
	if round >= len(p.rounds) {
		return nil, fmt.Errorf("unscripted round %d", round)
	}
	return &fakeStream{chunks: p.rounds[round]}, nil
}

func chunk(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: parts}},
		},
	}
}

func fakeTool(name string, invoke tools.InvokeFunc) *tools.BoundTool {
	return &tools.BoundTool{
		Definition:  ghl.ToolDefinition{Name: name},
		Declaration: &genai.FunctionDeclaration{Name: name},
		Invoke:      invoke,
	}
}

func jsonTool(name string, payload any) *tools.BoundTool {
	return fakeTool(name, func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
		raw, err := json.Marshal(payload)
		return raw, err
	})
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store, err := credentials.NewStore(map[string]credentials.Bundle{
		"user_123": {PITToken: "pit-abc", LocationID: "loc-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.NewManager(store).GetOrCreate("user_123")
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRun_SequentialCallResponseOrdering(t *testing.T) {
	provider := &fakeProvider{rounds: [][]*genai.GenerateContentResponse{
		{chunk(
			genai.FunctionCall{Name: "contacts_get-contacts", Args: map[string]any{"query_query": "john"}},
			genai.FunctionCall{Name: "calendars_get-calendar-events", Args: map[string]any{"query_calendarId": "cal-1"}},
		)},
		{chunk(genai.Text("Found him."))},
	}}
	bound := []*tools.BoundTool{
		jsonTool("contacts_get-contacts", map[string]any{"total": 1}),
		jsonTool("calendars_get-calendar-events", map[string]any{"events": []any{}}),
	}
	sess := newTestSession(t)

	events := collect(New(provider, "fake-model", bound).Run(context.Background(), sess, "find john"))

	var kinds []string
	for _, ev := range events {
		switch {
		case ev.FunctionCall != nil:
			kinds = append(kinds, "call:"+ev.FunctionCall.Name)
		case ev.FunctionResponse != nil:
			kinds = append(kinds, "resp:"+ev.FunctionResponse.Name)
		case ev.Text != nil && !ev.Text.Partial:
			kinds = append(kinds, "final")
		case ev.Text != nil:
			kinds = append(kinds, "partial")
		case ev.Error != nil:
			t.Fatalf("unexpected error event: %s", ev.Error.Message)
		}
	}
	want := []string{
		"call:contacts_get-contacts",
		"resp:contacts_get-contacts",
		"call:calendars_get-calendar-events",
		"resp:calendars_get-calendar-events",
		"partial",
		"final",
	}
	if strings.Join(kinds, " ") != strings.Join(want, " ") {
		t.Errorf("event order:\n got %v\nwant %v", kinds, want)
	}

	final := events[len(events)-1]
	if final.Text == nil || final.Text.Content != "Found him." {
		t.Errorf("final text = %+v", final)
	}

	// Turn committed: user message, model calls, function responses, model text.
	if got := len(sess.History()); got != 4 {
		t.Errorf("history length = %d, want 4", got)
	}
	// The second round saw the function responses as a user-role content.
	second := provider.histories[1]
	last := second[len(second)-1]
	if last.Role != "user" {
		t.Errorf("function response content role = %q, want user", last.Role)
	}
	if _, ok := last.Parts[0].(genai.FunctionResponse); !ok {
		t.Errorf("expected FunctionResponse part, got %T", last.Parts[0])
	}
}

func TestRun_CumulativeTextPartials(t *testing.T) {
	provider := &fakeProvider{rounds: [][]*genai.GenerateContentResponse{
		{chunk(genai.Text("Hello")), chunk(genai.Text(", world"))},
	}}
	sess := newTestSession(t)

	events := collect(New(provider, "fake-model", nil).Run(context.Background(), sess, "hi"))

	var partials []string
	var final string
	for _, ev := range events {
		if ev.Text == nil {
			t.Fatalf("unexpected non-text event: %+v", ev)
		}
		if ev.Text.Partial {
			partials = append(partials, ev.Text.Content)
		} else {
			final = ev.Text.Content
		}
	}
	if len(partials) != 2 || partials[0] != "Hello" || partials[1] != "Hello, world" {
		t.Errorf("partials = %v, want cumulative text-so-far", partials)
	}
	if final != "Hello, world" {
		t.Errorf("final = %q", final)
	}
}

func TestRun_ToolErrorBecomesResponsePayload(t *testing.T) {
	provider := &fakeProvider{rounds: [][]*genai.GenerateContentResponse{
		{chunk(genai.FunctionCall{Name: "contacts_get-contact", Args: map[string]any{}})},
		{chunk(genai.Text("That contact does not exist."))},
	}}
	bound := []*tools.BoundTool{
		fakeTool("contacts_get-contact", func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
			return nil, &ghl.ToolError{Kind: ghl.KindRemote, Code: -32001, Message: "contact not found"}
		}),
	}
	sess := newTestSession(t)

	events := collect(New(provider, "fake-model", bound).Run(context.Background(), sess, "open contact"))

	var resp *FunctionResponseEvent
	for _, ev := range events {
		if ev.Error != nil {
			t.Fatalf("tool failure must not terminate the turn: %s", ev.Error.Message)
		}
		if ev.FunctionResponse != nil {
			resp = ev.FunctionResponse
		}
	}
	if resp == nil {
		t.Fatal("no function response event emitted")
	}
	if resp.Response["error"] != "contact not found" {
		t.Errorf("response error = %v", resp.Response["error"])
	}
	if resp.Response["kind"] != string(ghl.KindRemote) {
		t.Errorf("response kind = %v", resp.Response["kind"])
	}
	if resp.Response["code"] != -32001 {
		t.Errorf("response code = %v", resp.Response["code"])
	}
}

func TestRun_UnknownToolBecomesResponsePayload(t *testing.T) {
	provider := &fakeProvider{rounds: [][]*genai.GenerateContentResponse{
		{chunk(genai.FunctionCall{Name: "no_such_tool", Args: map[string]any{}})},
		{chunk(genai.Text("Sorry."))},
	}}
	sess := newTestSession(t)

	events := collect(New(provider, "fake-model", nil).Run(context.Background(), sess, "do the thing"))

	found := false
	for _, ev := range events {
		if ev.FunctionResponse != nil {
			found = true
			if msg, _ := ev.FunctionResponse.Response["error"].(string); !strings.Contains(msg, "not found") {
				t.Errorf("response = %v", ev.FunctionResponse.Response)
			}
		}
	}
	if !found {
		t.Fatal("no function response event for unknown tool")
	}
}

func TestRun_CancelBetweenCallsSkipsRemainingAndCommitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secondInvoked := false
	bound := []*tools.BoundTool{
		fakeTool("contacts_get-contacts", func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
			cancel() // client goes away mid-call
			return json.RawMessage(`{"total":0}`), nil
		}),
		fakeTool("payments_list-transactions", func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
			secondInvoked = true
			return json.RawMessage(`{}`), nil
		}),
	}
	provider := &fakeProvider{rounds: [][]*genai.GenerateContentResponse{
		{chunk(
			genai.FunctionCall{Name: "contacts_get-contacts", Args: map[string]any{}},
			genai.FunctionCall{Name: "payments_list-transactions", Args: map[string]any{}},
		)},
	}}
	sess := newTestSession(t)

	events := collect(New(provider, "fake-model", bound).Run(ctx, sess, "report"))

	if secondInvoked {
		t.Error("second tool invoked after cancellation")
	}
	for _, ev := range events {
		if ev.FunctionCall != nil && ev.FunctionCall.Name == "payments_list-transactions" {
			t.Error("call event emitted for skipped tool")
		}
		if ev.Text != nil && !ev.Text.Partial {
			t.Error("final text emitted for a cancelled turn")
		}
	}
	if got := len(sess.History()); got != 0 {
		t.Errorf("cancelled turn committed %d history entries", got)
	}
	if !sess.BeginTurn() {
		t.Error("turn slot not released after cancellation")
	}
	sess.EndTurn()
}

func TestRun_SecondTurnRejectedWhileInFlight(t *testing.T) {
	sess := newTestSession(t)
	if !sess.BeginTurn() {
		t.Fatal("could not claim turn slot")
	}
	defer sess.EndTurn()

	provider := &fakeProvider{}
	events := collect(New(provider, "fake-model", nil).Run(context.Background(), sess, "hi"))

	if len(events) != 1 || events[0].Error == nil {
		t.Fatalf("events = %+v, want single error event", events)
	}
	if !strings.Contains(events[0].Error.Message, "already in flight") {
		t.Errorf("error message = %q", events[0].Error.Message)
	}
	if len(provider.histories) != 0 {
		t.Error("model called despite rejected turn")
	}
}
