// Package llmtest provides a scripted llm.Provider for tests, injected by
// constructor wherever a real vendor client would go.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/metastable-lab/roleplay/internal/llm"
)

// ScriptedProvider replays a fixed sequence of responses (or errors) and
// records every request it saw.
type ScriptedProvider struct {
	mu    sync.Mutex
	queue []step

	Requests []llm.Request
}

type step struct {
	resp llm.Response
	err  error
}

// Enqueue appends a successful response to the script.
func (p *ScriptedProvider) Enqueue(resp llm.Response) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, step{resp: resp})
	return p
}

// EnqueueErr appends a failing call to the script.
func (p *ScriptedProvider) EnqueueErr(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, step{err: err})
	return p
}

// Chat pops the next scripted step.
func (p *ScriptedProvider) Chat(_ context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if len(p.queue) == 0 {
		return llm.Response{}, fmt.Errorf("llmtest: script exhausted after %d calls", len(p.Requests))
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	return next.resp, next.err
}

// ToolCallResponse builds the common happy-path response: one tool call
// with the given arguments, usage present.
func ToolCallResponse(name string, args any) llm.Response {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.Response{
		Message: llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: name, Args: raw}},
		},
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		FinishReason: "tool_calls",
	}
}
