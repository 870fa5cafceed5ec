// Package roleplay is the Roleplay Engine: per-turn
// orchestration over sessions, characters, credits, and the memory queue,
// plus the send_message tool both roleplay agents emit.
package roleplay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metastable-lab/roleplay/internal/toolschema"
)

// Message part kinds as the tool schema spells them. The wire casing is
// camelCase, matching the stored first_message tool calls.
const (
	PartAction        = "action"
	PartScenario      = "scenario"
	PartInnerThoughts = "innerThoughts"
	PartChat          = "chat"
	PartText          = "text"
	PartOptions       = "options"
)

var partKinds = []string{PartAction, PartScenario, PartInnerThoughts, PartChat, PartText, PartOptions}

// MessagePart is one typed fragment of an assistant reply. Content is a
// string for every kind except options, which carries a string array.
type MessagePart struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// SendMessageTool is the single structured output of both roleplay agents:
// an ordered list of typed message parts.
type SendMessageTool struct {
	Messages []MessagePart `json:"messages"`
}

func (t *SendMessageTool) ToolName() string { return "send_message" }

func (t *SendMessageTool) ToolDescription() string {
	return "Send the in-character reply as an ordered list of typed message parts; story options go in one options part."
}

func (t *SendMessageTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"messages": map[string]any{
				"type":        "array",
				"description": "Ordered message parts composing the reply.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type": map[string]any{
							"type": "string",
							"enum": partKinds,
						},
						"content": map[string]any{
							"description": "The part payload: a string, or an array of strings for options.",
						},
					},
					"required":             []string{"type", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"messages"},
		"additionalProperties": false,
	}
}

func (t *SendMessageTool) Validate() error {
	if err := toolschema.RequireNonEmpty("messages", t.Messages); err != nil {
		return err
	}
	for i, part := range t.Messages {
		if part.Type == PartOptions {
			if _, err := part.Options(); err != nil {
				return fmt.Errorf("messages[%d]: %w", i, err)
			}
			continue
		}
		known := false
		for _, k := range partKinds {
			if part.Type == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("messages[%d]: unknown part type %q", i, part.Type)
		}
		if _, err := part.Text(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}

// Text decodes the part content as a string.
func (p MessagePart) Text() (string, error) {
	var s string
	if err := json.Unmarshal(p.Content, &s); err != nil {
		return "", fmt.Errorf("part %q content is not a string", p.Type)
	}
	return s, nil
}

// Options decodes the part content as a string array.
func (p MessagePart) Options() ([]string, error) {
	var opts []string
	if err := json.Unmarshal(p.Content, &opts); err != nil {
		return nil, fmt.Errorf("options content is not a string array")
	}
	return opts, nil
}

// codecVariantByPart maps schema part kinds onto the text-codec variant ids.
var codecVariantByPart = map[string]string{
	PartAction:        "action",
	PartScenario:      "scenario",
	PartInnerThoughts: "inner_thoughts",
	PartChat:          "chat",
	PartText:          "text",
	PartOptions:       "options",
}

// Render flattens the tool into display text plus the extracted options
// list, emitting each narrative part through the tagged-union codec so the
// stored form round-trips.
func (t *SendMessageTool) Render(codec toolschema.TextCodec) (string, []string, error) {
	var (
		b       strings.Builder
		options []string
	)
	for _, part := range t.Messages {
		if part.Type == PartOptions {
			opts, err := part.Options()
			if err != nil {
				return "", nil, err
			}
			options = append(options, opts...)
			continue
		}
		text, err := part.Text()
		if err != nil {
			return "", nil, err
		}
		line, err := codec.Emit(toolschema.TaggedValue{VariantID: codecVariantByPart[part.Type], Content: text})
		if err != nil {
			return "", nil, err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), options, nil
}
