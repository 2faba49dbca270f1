// Package tools turns the remote GHL tool catalog into callable functions
// for the agent loop. Discovery happens once per process; the resulting
// registry is read-only and shared across all sessions.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"

	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/ghl"
)

// InvokeFunc executes one tool call. Credentials are supplied by the
// caller, keeping the registry tenant-agnostic.
type InvokeFunc func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error)

// BoundTool is one callable tool: its catalog definition, its translated
// function declaration, and an invoke closure over the protocol bridge.
// BoundTools are stateless beyond that closure.
type BoundTool struct {
	Definition  ghl.ToolDefinition
	Declaration *genai.FunctionDeclaration
	Kind        Kind
	Invoke      InvokeFunc
}

// Registry discovers and binds the tool catalog.
type Registry struct {
	bridge *ghl.Bridge
	clock  Clock

	mu    sync.Mutex
	bound []*BoundTool
}

func NewRegistry(bridge *ghl.Bridge, opts ...RegistryOption) *Registry {
	r := &Registry{bridge: bridge, clock: systemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the datetime tool's clock (tests).
func WithClock(c Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// Discover fetches the remote catalog once and binds one BoundTool per
// definition, plus the local datetime tool. Subsequent calls return the
// cached set; there is no periodic refresh. A definition whose schema
// cannot be translated is logged and skipped — it must not register.
func (r *Registry) Discover(ctx context.Context, creds credentials.Bundle) ([]*BoundTool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound != nil {
		return r.bound, nil
	}

	defs, err := r.bridge.ListTools(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("discover tool catalog: %w", err)
	}

	bound := make([]*BoundTool, 0, len(defs)+1)
	for _, def := range defs {
		tool, err := bind(r.bridge, def)
		if err != nil {
			var schemaErr *ghl.SchemaError
			if errors.As(err, &schemaErr) {
				slog.Warn("Skipping tool with untranslatable schema", "tool", def.Name, "path", schemaErr.Path, "error", schemaErr.Message)
				continue
			}
			return nil, err
		}
		bound = append(bound, tool)
	}
	bound = append(bound, newDateTimeTool(r.clock))

	slog.Info("Bound tool catalog", "remote", len(bound)-1, "local", 1)
	r.bound = bound
	return bound, nil
}

// Tools returns the cached bound set. Nil before Discover.
func (r *Registry) Tools() []*BoundTool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// bind wires one catalog definition to the bridge.
func bind(bridge *ghl.Bridge, def ghl.ToolDefinition) (*BoundTool, error) {
	params, err := ghl.Translate(def.InputSchema)
	if err != nil {
		return nil, err
	}
	return &BoundTool{
		Definition: def,
		Declaration: &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		},
		Kind: KindOf(def.Name),
		Invoke: func(ctx context.Context, args map[string]any, creds credentials.Bundle) (json.RawMessage, error) {
			return bridge.Call(ctx, def.Name, args, creds)
		},
	}, nil
}

// Declarations groups all bound declarations into the single genai.Tool the
// model expects.
func Declarations(bound []*BoundTool) []*genai.Tool {
	if len(bound) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(bound))
	for _, t := range bound {
		decls = append(decls, t.Declaration)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Find locates a bound tool by name.
func Find(bound []*BoundTool, name string) (*BoundTool, bool) {
	for _, t := range bound {
		if t.Definition.Name == name {
			return t, true
		}
	}
	return nil, false
}
