package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/ghl"
)

// DateTimeToolName is the synthetic local tool the model calls to learn the
// current date before computing calendar ranges.
const DateTimeToolName = "get_current_datetime"

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DateTimePayload is the datetime tool's result. Week bounds run Monday
// 00:00:00 UTC to the following Monday 00:00:00 UTC (half-open, exactly
// seven days). The millisecond fields exist because GHL calendar tools take
// epoch-millisecond ranges.
type DateTimePayload struct {
	ISO8601Now  string `json:"iso8601Now"`
	Today       string `json:"today"`
	DayOfWeek   string `json:"dayOfWeek"`
	WeekStart   string `json:"weekStart"`
	WeekEnd     string `json:"weekEnd"`
	WeekStartMs int64  `json:"weekStartMs"`
	WeekEndMs   int64  `json:"weekEndMs"`
}

// newDateTimeTool builds the datetime tool with the same BoundTool contract
// as the remote-backed tools; the loop cannot tell it apart.
func newDateTimeTool(clock Clock) *BoundTool {
	return &BoundTool{
		Definition: ghl.ToolDefinition{
			Name:        DateTimeToolName,
			Description: "Get the current date and time, plus the epoch-millisecond bounds of the current week (Monday through Sunday). Call this before any date-relative calendar query.",
		},
		Declaration: &genai.FunctionDeclaration{
			Name:        DateTimeToolName,
			Description: "Get the current date and time, plus the epoch-millisecond bounds of the current week (Monday through Sunday). Call this before any date-relative calendar query.",
			Parameters:  &genai.Schema{Type: genai.TypeObject},
		},
		Kind: KindDateTime,
		Invoke: func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
			return json.Marshal(currentDateTime(clock.Now()))
		},
	}
}

func currentDateTime(now time.Time) DateTimePayload {
	now = now.UTC()

	// time.Weekday counts Sunday as 0; the week here starts Monday.
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	weekEnd := weekStart.AddDate(0, 0, 7)

	return DateTimePayload{
		ISO8601Now:  now.Format(time.RFC3339),
		Today:       now.Format("Monday, January 2, 2006"),
		DayOfWeek:   now.Format("Monday"),
		WeekStart:   weekStart.Format(time.RFC3339),
		WeekEnd:     weekEnd.Format(time.RFC3339),
		WeekStartMs: weekStart.UnixMilli(),
		WeekEndMs:   weekEnd.UnixMilli(),
	}
}
