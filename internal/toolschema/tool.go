// Package toolschema implements the tool schema and codec layer: the
// strict JSON-schema <-> typed-value bridge every Agent uses to
// constrain and parse its single structured LLM output, plus the
// tagged-union text codec used by domain enums that round-trip through
// message content.
package toolschema

import (
	"encoding/json"
	"fmt"

	"github.com/metastable-lab/roleplay/internal/llm"
)

// Tool is the single structured-output schema an Agent is allowed to emit
// per call. A concrete Tool is always implemented on a
// pointer receiver so FromToolCall can unmarshal directly into it, the same
// way encoding/json itself requires a pointer destination.
type Tool interface {
	// ToolName is the function name advertised to the LLM vendor and
	// matched against the returned tool_calls[0].function.name.
	ToolName() string
	ToolDescription() string
	// JSONSchema describes "parameters": {type, properties, required,
	// additionalProperties: false, ...}. additionalProperties:false and any
	// enum keywords are the caller's responsibility so each Tool controls
	// its own strictness; ToFunctionObject does not inject them.
	JSONSchema() map[string]any
	// Validate checks required fields and value constraints after
	// unmarshaling, since encoding/json silently zero-fills missing fields.
	Validate() error
}

// FunctionObject is the vendor-facing shape C3 sends as one entry of the
// request's "tools" array.
type FunctionObject struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// ToFunctionObject builds the vendor tool definition for t. Strict is always
// true.
func ToFunctionObject(t Tool) FunctionObject {
	return FunctionObject{
		Name:        t.ToolName(),
		Description: t.ToolDescription(),
		Parameters:  t.JSONSchema(),
		Strict:      true,
	}
}

// ToToolSchema adapts a Tool's FunctionObject into the portable llm.ToolSchema
// shape the vendor client packages consume.
func ToToolSchema(t Tool) llm.ToolSchema {
	fo := ToFunctionObject(t)
	return llm.ToolSchema{Name: fo.Name, Description: fo.Description, Parameters: fo.Parameters}
}

// FromToolCall parses fc.Args into t and validates it. fc.Name must match t.ToolName() or parsing fails:
// this is the per-Agent enforcement that exactly one function, the one the
// Agent declared, was invoked.
func FromToolCall(t Tool, fc llm.ToolCall) error {
	if fc.Name != t.ToolName() {
		return fmt.Errorf("toolschema: tool call name %q does not match expected %q", fc.Name, t.ToolName())
	}
	if err := json.Unmarshal(fc.Args, t); err != nil {
		return fmt.Errorf("toolschema: decode arguments for %q: %w", t.ToolName(), err)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("toolschema: validate %q: %w", t.ToolName(), err)
	}
	return nil
}

// ToToolCall is the round-trip inverse of FromToolCall, used by
// round-trip property tests.
func ToToolCall(t Tool) (llm.ToolCall, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return llm.ToolCall{}, fmt.Errorf("toolschema: encode arguments for %q: %w", t.ToolName(), err)
	}
	return llm.ToolCall{Name: t.ToolName(), Args: raw}, nil
}

// RequireString returns an error naming field if v is empty, the common case
// for Validate() implementations.
func RequireString(field, v string) error {
	if v == "" {
		return fmt.Errorf("missing required field %q", field)
	}
	return nil
}

// RequireNonEmpty returns an error naming field if the slice is empty.
func RequireNonEmpty[T any](field string, v []T) error {
	if len(v) == 0 {
		return fmt.Errorf("missing required field %q", field)
	}
	return nil
}
