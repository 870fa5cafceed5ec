package toolschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/llm"
)

func toolCallFixture(name, args string) llm.ToolCall {
	return llm.ToolCall{Name: name, Args: json.RawMessage(args)}
}

// sampleTool is a minimal Tool used only to exercise the round-trip property
// independent of any concrete Agent's schema.
type sampleTool struct {
	Fact string `json:"fact"`
}

func (s *sampleTool) ToolName() string        { return "sample_tool" }
func (s *sampleTool) ToolDescription() string { return "test fixture" }
func (s *sampleTool) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"fact": map[string]any{"type": "string"}},
		"required":             []string{"fact"},
		"additionalProperties": false,
	}
}
func (s *sampleTool) Validate() error { return RequireString("fact", s.Fact) }

func TestToolRoundTrip(t *testing.T) {
	original := &sampleTool{Fact: "likes durian"}
	call, err := ToToolCall(original)
	require.NoError(t, err)
	assert.Equal(t, "sample_tool", call.Name)

	decoded := &sampleTool{}
	require.NoError(t, FromToolCall(decoded, call))
	assert.Equal(t, original, decoded)
}

func TestFromToolCallRejectsWrongName(t *testing.T) {
	decoded := &sampleTool{}
	err := FromToolCall(decoded, toolCallFixture("other_tool", `{"fact":"x"}`))
	assert.Error(t, err)
}

func TestFromToolCallRejectsMissingRequired(t *testing.T) {
	decoded := &sampleTool{}
	err := FromToolCall(decoded, toolCallFixture("sample_tool", `{}`))
	assert.Error(t, err)
}

func TestToFunctionObjectIsStrict(t *testing.T) {
	fo := ToFunctionObject(&sampleTool{})
	assert.True(t, fo.Strict)
	assert.Equal(t, "sample_tool", fo.Name)
}
