package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/llm/llmtest"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
	"github.com/metastable-lab/roleplay/internal/toolschema"
)

type echoTool struct {
	Answer string `json:"answer"`
}

func (e *echoTool) ToolName() string        { return "echo" }
func (e *echoTool) ToolDescription() string { return "echo fixture" }
func (e *echoTool) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"answer": map[string]any{"type": "string"}},
		"required":             []string{"answer"},
		"additionalProperties": false,
	}
}
func (e *echoTool) Validate() error { return toolschema.RequireString("answer", e.Answer) }

type echoInput struct {
	Question string
}

func newEchoAgent() *Agent[echoInput, *echoTool] {
	return &Agent[echoInput, *echoTool]{
		Definition: domain.SystemConfig{
			Name:         "echo_v0",
			SystemPrompt: "Answer by calling echo.",
			Model:        "test-model",
			Temperature:  0.1,
			MaxTokens:    128,
		},
		NewTool: func() *echoTool { return &echoTool{} },
		BuildInput: func(in *echoInput) ([]domain.Prompt, error) {
			return []domain.Prompt{
				{Role: domain.RoleSystem, ContentType: domain.ContentText, Content: "Answer by calling echo."},
				{Role: domain.RoleUserMsg, ContentType: domain.ContentText, Content: in.Question},
			}, nil
		},
	}
}

func runtimeFor(p llm.Provider) *Runtime {
	return NewRuntime(p, 1, time.Minute)
}

func TestCallHappyPath(t *testing.T) {
	p := (&llmtest.ScriptedProvider{}).Enqueue(llmtest.ToolCallResponse("echo", map[string]any{"answer": "hi"}))
	a := newEchoAgent()

	resp, err := a.Call(context.Background(), runtimeFor(p), Caller{UserID: "u1"}, &echoInput{Question: "hello?"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Tool.Answer)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "u1", resp.Caller.UserID)

	// The request carried exactly the agent's one tool.
	require.Len(t, p.Requests, 1)
	require.Len(t, p.Requests[0].Tools, 1)
	assert.Equal(t, "echo", p.Requests[0].Tools[0].Name)
}

func TestCallToolArity(t *testing.T) {
	two := llmtest.ToolCallResponse("echo", map[string]any{"answer": "a"})
	two.Message.ToolCalls = append(two.Message.ToolCalls, two.Message.ToolCalls[0])
	zero := llm.Response{
		Message: llm.Message{Role: "assistant", Content: "no tool"},
		Usage:   llm.Usage{TotalTokens: 3},
	}
	// One retry is budgeted; both attempts violate arity, so the error
	// surfaces.
	p := (&llmtest.ScriptedProvider{}).Enqueue(two).Enqueue(zero)
	a := newEchoAgent()

	_, err := a.Call(context.Background(), runtimeFor(p), Caller{}, &echoInput{})
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.ToolArity))
	assert.Len(t, p.Requests, 2)
}

func TestCallToolArityRecoversOnRetry(t *testing.T) {
	two := llmtest.ToolCallResponse("echo", map[string]any{"answer": "a"})
	two.Message.ToolCalls = append(two.Message.ToolCalls, two.Message.ToolCalls[0])
	good := llmtest.ToolCallResponse("echo", map[string]any{"answer": "b"})
	p := (&llmtest.ScriptedProvider{}).Enqueue(two).Enqueue(good)
	a := newEchoAgent()

	resp, err := a.Call(context.Background(), runtimeFor(p), Caller{}, &echoInput{})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Tool.Answer)
}

func TestCallToolParse(t *testing.T) {
	bad := llmtest.ToolCallResponse("echo", map[string]any{"wrong_field": 1})
	p := (&llmtest.ScriptedProvider{}).Enqueue(bad).Enqueue(bad)
	a := newEchoAgent()

	_, err := a.Call(context.Background(), runtimeFor(p), Caller{}, &echoInput{})
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.ToolParse))
}

func TestCallNoUsage(t *testing.T) {
	resp := llmtest.ToolCallResponse("echo", map[string]any{"answer": "x"})
	resp.Usage = llm.Usage{}
	p := (&llmtest.ScriptedProvider{}).Enqueue(resp)
	a := newEchoAgent()

	_, err := a.Call(context.Background(), runtimeFor(p), Caller{}, &echoInput{})
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.NoUsage))
	// NoUsage is not retried: do not risk double deduction.
	assert.Len(t, p.Requests, 1)
}

func TestCallTransientRetries(t *testing.T) {
	p := (&llmtest.ScriptedProvider{}).
		EnqueueErr(context.DeadlineExceeded).
		Enqueue(llmtest.ToolCallResponse("echo", map[string]any{"answer": "after retry"}))
	a := newEchoAgent()

	resp, err := a.Call(context.Background(), runtimeFor(p), Caller{}, &echoInput{})
	require.NoError(t, err)
	assert.Equal(t, "after retry", resp.Tool.Answer)
}

func TestAdaptPromptsRoles(t *testing.T) {
	msgs := AdaptPrompts([]domain.Prompt{
		{Role: domain.RoleSystem, Content: "s"},
		{Role: domain.RoleUserMsg, Content: "u"},
		{Role: domain.RoleAssistant, Content: "a"},
		{Role: domain.RoleAssistant, ContentType: domain.ContentImage, Content: "https://img.example/x.png"},
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "https://img.example/x.png", msgs[3].ImageURL)
	assert.Empty(t, msgs[3].Content)
}
