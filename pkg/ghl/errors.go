package ghl

import "fmt"

// ErrorKind classifies tool call failures so callers can distinguish
// network problems from protocol problems and from remote rejections.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindParse     ErrorKind = "parse"
	KindRemote    ErrorKind = "remote"
)

// ToolError is returned by the bridge for any failed tool call.
// The bridge never retries; recovery is left to the caller.
type ToolError struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ghl: %s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("ghl: %s error: %s", e.Kind, e.Message)
}

// SchemaError reports a tool input schema that could not be translated.
// Path points at the field that lacked a resolvable type.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ghl: schema error at %s: %s", e.Path, e.Message)
}
