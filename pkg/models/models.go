// Package models abstracts the LLM provider behind a small streaming
// interface so the agent loop can be driven by a fake in tests.
package models

import (
	"context"

	"github.com/google/generative-ai-go/genai"
)

// Provider represents a service that provides LLMs (e.g. Gemini).
type Provider interface {
	// List returns the names of available models.
	List(ctx context.Context) ([]string, error)

	// Stream sends the conversation to the model and returns a response
	// stream. The last entry of history is the outgoing message; earlier
	// entries are prior context. tools declares the callable functions.
	Stream(ctx context.Context, modelName, system string, tools []*genai.Tool, history []*genai.Content) (Stream, error)
}

// Stream is a sequence of partial model responses. Next returns
// iterator.Done after the last chunk.
type Stream interface {
	Next() (*genai.GenerateContentResponse, error)
	Close() error
}
