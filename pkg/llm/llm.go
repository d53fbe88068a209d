// Package llm is the token-generation boundary. The orchestrator depends
// only on the Client interface; production wiring uses the OpenAI-style
// streaming client, tests use the scripted mock.
package llm

import (
	"context"
	"encoding/json"
)

// ChatMessage is one entry in the prompt sent to the model.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured action request emitted by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a callable tool advertised to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is one generation call.
type Request struct {
	Messages []ChatMessage
	Tools    []Tool
}

// Result is what a completed generation call produced. Content holds the
// full text already delivered through the token callback; ToolCalls are
// the structured actions the model finished the call with, if any.
type Result struct {
	Content   string
	ToolCalls []ToolCall
}

// Client streams one generation call. onToken is invoked for every text
// fragment in production order; returning an error from it aborts the
// call.
type Client interface {
	Stream(ctx context.Context, req Request, onToken func(string) error) (*Result, error)
}
