package agent

// Event is a tagged union over everything a turn can produce. Exactly one
// payload pointer is non-nil. Events are immutable and emitted in strict
// production order: each FunctionCall is followed by its FunctionResponse
// before the next call begins, text partials carry the cumulative
// text-so-far, and one final text closes the turn.
type Event struct {
	FunctionCall     *FunctionCallEvent
	FunctionResponse *FunctionResponseEvent
	Text             *TextEvent
	Error            *ErrorEvent
}

// FunctionCallEvent records the model requesting a tool call.
type FunctionCallEvent struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponseEvent records a completed tool call. Tool-level failures
// are carried here as the response payload so the model can recover; they
// do not terminate the turn.
type FunctionResponseEvent struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// TextEvent carries assistant text. Partial events hold the cumulative
// text-so-far, not a delta; the single non-partial event is authoritative.
type TextEvent struct {
	Content string `json:"content"`
	Partial bool   `json:"partial"`
}

// ErrorEvent is terminal: the turn failed before or outside tool recovery.
type ErrorEvent struct {
	Message string `json:"message"`
}

func callEvent(name string, args map[string]any) Event {
	return Event{FunctionCall: &FunctionCallEvent{Name: name, Args: args}}
}

func responseEvent(name string, response map[string]any) Event {
	return Event{FunctionResponse: &FunctionResponseEvent{Name: name, Response: response}}
}

func textEvent(content string, partial bool) Event {
	return Event{Text: &TextEvent{Content: content, Partial: partial}}
}

func errorEvent(message string) Event {
	return Event{Error: &ErrorEvent{Message: message}}
}
