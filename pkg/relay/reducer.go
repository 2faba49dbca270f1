package relay

import (
	"bytes"
	"strings"

	"github.com/aiprl/april/pkg/agent"
)

// Status is the reducer's finite state machine state.
type Status int

const (
	// Idle: no turn in flight.
	Idle Status = iota
	// Loading: turn requested, no event received yet.
	Loading
	// Streaming: at least one event has arrived.
	Streaming
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Streaming:
		return "streaming"
	default:
		return "idle"
	}
}

// DefaultLiveWindow bounds the trailing tool-activity list.
const DefaultLiveWindow = 8

// ActivityState is the live view of the in-flight turn. Rebuilt fresh per
// turn; owned exclusively by the reducer.
type ActivityState struct {
	Status        Status
	LiveEvents    []agent.Event
	StreamingText string
	Err           string
}

// Message is one committed turn: the authoritative final text plus the
// tool calls that produced it. Immutable once committed.
type Message struct {
	Text  string
	Calls []agent.FunctionCallEvent
	Err   string
}

// Reducer consumes raw stream chunks and reduces them into activity state.
// Chunk boundaries never align with frame boundaries, so partial lines are
// buffered and only complete ones parsed.
type Reducer struct {
	maxLive int

	buf       bytes.Buffer
	state     ActivityState
	calls     []agent.FunctionCallEvent
	finalText string
	sawFinal  bool
}

func NewReducer() *Reducer {
	return &Reducer{maxLive: DefaultLiveWindow, state: ActivityState{Status: Idle}}
}

// Start transitions Idle -> Loading with fresh per-turn state.
func (r *Reducer) Start() {
	r.buf.Reset()
	r.calls = nil
	r.finalText = ""
	r.sawFinal = false
	r.state = ActivityState{Status: Loading}
}

// State returns a copy of the current activity state.
func (r *Reducer) State() ActivityState {
	out := r.state
	out.LiveEvents = append([]agent.Event(nil), r.state.LiveEvents...)
	return out
}

// Feed consumes one transport chunk. Complete "data:" lines are parsed and
// applied; the trailing partial line stays buffered for the next chunk.
func (r *Reducer) Feed(chunk []byte) error {
	r.buf.Write(chunk)

	for {
		raw := r.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return nil
		}
		line := string(raw[:idx])
		r.buf.Next(idx + 1)

		line = strings.TrimRight(line, "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		ev, err := ParseFrame([]byte(strings.TrimSpace(payload)))
		if err != nil {
			return err
		}
		r.apply(ev)
	}
}

func (r *Reducer) apply(ev agent.Event) {
	if r.state.Status == Loading {
		r.state.Status = Streaming
	}
	switch {
	case ev.FunctionCall != nil:
		r.calls = append(r.calls, *ev.FunctionCall)
		r.appendLive(ev)
	case ev.FunctionResponse != nil:
		r.appendLive(ev)
	case ev.Text != nil:
		// Cumulative partials: the latest text event replaces, never appends.
		r.state.StreamingText = ev.Text.Content
		if !ev.Text.Partial {
			r.finalText = ev.Text.Content
			r.sawFinal = true
		}
	case ev.Error != nil:
		r.state.Err = ev.Error.Message
	}
}

// appendLive keeps the trailing window of call activity.
func (r *Reducer) appendLive(ev agent.Event) {
	r.state.LiveEvents = append(r.state.LiveEvents, ev)
	if len(r.state.LiveEvents) > r.maxLive {
		r.state.LiveEvents = r.state.LiveEvents[len(r.state.LiveEvents)-r.maxLive:]
	}
}

// Complete commits the finished turn as one immutable message and resets to
// Idle. A turn that ended in a terminal error commits the error in place of
// final text.
func (r *Reducer) Complete() Message {
	msg := Message{
		Text:  r.finalText,
		Calls: r.calls,
		Err:   r.state.Err,
	}
	if !r.sawFinal && msg.Err == "" {
		// Stream ended without a final text event; fall back to the last
		// partial rather than dropping the turn.
		msg.Text = r.state.StreamingText
	}
	r.reset()
	return msg
}

// Abort tears down the in-flight turn: straight to Idle, nothing committed,
// live state cleared.
func (r *Reducer) Abort() {
	r.reset()
}

func (r *Reducer) reset() {
	r.buf.Reset()
	r.calls = nil
	r.finalText = ""
	r.sawFinal = false
	r.state = ActivityState{Status: Idle}
}
