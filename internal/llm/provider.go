// Package llm defines the portable, vendor-agnostic request/response shapes
// the Agent Contract builds against. Concrete vendor clients
// (openai, anthropic) adapt these to their SDK's wire types.
package llm

import (
	"context"
	"encoding/json"
)

// ToolCall is one function invocation the model asked to make.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message is one entry of the prompt sequence sent to, or returned from, the
// vendor. Role is one of "system", "user", "assistant", "tool".
type Message struct {
	Role      string
	Content   string
	ToolID    string // set on role=="tool", echoes the ToolCall.ID it answers
	ToolCalls []ToolCall

	// ImageURL is set on user/assistant messages whose content_type is
	// Image.
	ImageURL string
}

// ToolSchema is the portable shape of one Agent's single declared
// function, adapted per-vendor by the client packages into their SDK's
// tool-definition type.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage is the vendor's token accounting for one call. Usage must be
// present on every response; its absence is the NoUsage error.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ImageOptions flattens the Image-Agent extension's modality/reasoning
// hints into the vendor request body.
type ImageOptions struct {
	Modalities      []string
	ReasoningEffort string
}

// Request is one non-streaming chat-completion call.
// Tool choice is always "auto" at the vendor level; C3 enforces arity
// (exactly one call) after the fact rather than by a stricter tool_choice.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []Message
	Tools       []ToolSchema
	Image       *ImageOptions
}

// Response is the vendor's reply to one Request.
type Response struct {
	Message      Message
	Usage        Usage
	FinishReason string
}

// Provider is the contract every vendor client implements. Streaming is out
// of scope.
type Provider interface {
	Chat(ctx context.Context, req Request) (Response, error)
}
