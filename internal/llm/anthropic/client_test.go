package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/llm"
)

func TestAdaptMessagesSplitsSystemFromMessages(t *testing.T) {
	msgs := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "", ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "send_message", Args: json.RawMessage(`{"content":"hello"}`)},
		}},
		{Role: "tool", Content: `{"ok":true}`, ToolID: "call_1"},
	}
	system, out := adaptMessages(msgs, config.AnthropicPromptCacheConfig{})
	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)
	require.Len(t, out, 3)
}

func TestAdaptToolsBuildsObjectSchema(t *testing.T) {
	schemas := []llm.ToolSchema{
		{Name: "send_message", Description: "reply to the user", Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"content": map[string]any{"type": "string"}},
			"required":             []string{"content"},
			"additionalProperties": false,
		}},
	}
	out, err := adaptTools(schemas)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "send_message", out[0].OfTool.Name)
	assert.Equal(t, []string{"content"}, out[0].OfTool.InputSchema.Required)
}

func TestAdaptToolsRejectsEmptyName(t *testing.T) {
	_, err := adaptTools([]llm.ToolSchema{{Name: ""}})
	assert.Error(t, err)
}

func TestDecodeArgsFallsBackToEmptyObject(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeArgs(nil))
	assert.Equal(t, map[string]any{}, decodeArgs(json.RawMessage(`not json`)))
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeArgs(json.RawMessage(`{"a":1}`)))
}
