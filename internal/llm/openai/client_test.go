package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/llm"
)

func TestAdaptMessagesPreservesOrderAndCount(t *testing.T) {
	msgs := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "", ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "send_message", Args: json.RawMessage(`{"content":"hello"}`)},
		}},
		{Role: "tool", Content: `{"ok":true}`, ToolID: "call_1"},
	}
	out := adaptMessages(msgs)
	require.Len(t, out, len(msgs))
}

func TestAdaptToolsCarriesStrictSchema(t *testing.T) {
	schemas := []llm.ToolSchema{
		{Name: "send_message", Description: "reply to the user", Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"content": map[string]any{"type": "string"}},
			"required":             []string{"content"},
			"additionalProperties": false,
		}},
	}
	out := adaptTools(schemas)
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].OfFunction)
	assert.Equal(t, "send_message", out[0].OfFunction.Function.Name)
}
