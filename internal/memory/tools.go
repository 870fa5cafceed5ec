// Package memory implements the asynchronous memory pipeline: fact
// extraction from recent turns, vector-memory reconciliation
// via {ADD, UPDATE, DELETE, NOOP} decisions, and knowledge-graph updates
// with vector-similarity entity merges.
package memory

import (
	"fmt"

	"github.com/metastable-lab/roleplay/internal/toolschema"
)

// Filter scopes memory rows to one user and optionally one character and/or
// session.
type Filter struct {
	UserID      string
	CharacterID string
	SessionID   string
}

// ExtractFactsTool is C7's single output: atomic declarative facts.
type ExtractFactsTool struct {
	Facts []string `json:"facts"`
}

func (t *ExtractFactsTool) ToolName() string { return "extract_facts" }
func (t *ExtractFactsTool) ToolDescription() string {
	return "Extract facts and preferences from the user input. Each fact must be a separate string in the array."
}

func (t *ExtractFactsTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"facts": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "The list of facts extracted from the user input.",
			},
		},
		"required":             []string{"facts"},
		"additionalProperties": false,
	}
}

// Validate accepts an empty list: irrelevant input yields facts = [].
func (t *ExtractFactsTool) Validate() error {
	if t.Facts == nil {
		return fmt.Errorf("missing required field %q", "facts")
	}
	return nil
}

// Memory events.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNoop   = "NOOP"
)

// MemoryOp is one reconciliation decision emitted by the update-memory
// agent. ID is required for UPDATE/DELETE and forbidden for ADD; that rule
// is re-validated in code against the candidate set, not just prompted.
type MemoryOp struct {
	ID      string `json:"id,omitempty"`
	Event   string `json:"event"`
	Content string `json:"content"`
}

// UpdateMemoryTool is C8's decision list.
type UpdateMemoryTool struct {
	Memory []MemoryOp `json:"memory"`
}

func (t *UpdateMemoryTool) ToolName() string { return "update_memory" }
func (t *UpdateMemoryTool) ToolDescription() string {
	return "Decide, per fact, whether to ADD a new memory, UPDATE or DELETE an existing one by id, or NOOP."
}

func (t *UpdateMemoryTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory": map[string]any{
				"type":        "array",
				"description": "One decision per fact.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":      map[string]any{"type": "string", "description": "The id of the existing memory; required for UPDATE and DELETE, omitted for ADD."},
						"event":   map[string]any{"type": "string", "enum": []string{EventAdd, EventUpdate, EventDelete, EventNoop}},
						"content": map[string]any{"type": "string", "description": "The memory text after applying the event."},
					},
					"required":             []string{"event", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"memory"},
		"additionalProperties": false,
	}
}

func (t *UpdateMemoryTool) Validate() error {
	if t.Memory == nil {
		return fmt.Errorf("missing required field %q", "memory")
	}
	for i, op := range t.Memory {
		switch op.Event {
		case EventAdd, EventUpdate, EventDelete, EventNoop:
		default:
			return fmt.Errorf("memory[%d]: unknown event %q", i, op.Event)
		}
	}
	return nil
}

// EntityTag is one extracted entity.
type EntityTag struct {
	EntityName string `json:"entity_name"`
	EntityTag  string `json:"entity_tag"`
}

// ExtractEntitiesTool is the first graph-extraction stage's output.
type ExtractEntitiesTool struct {
	Entities []EntityTag `json:"entities"`
}

func (t *ExtractEntitiesTool) ToolName() string { return "extract_entities" }
func (t *ExtractEntitiesTool) ToolDescription() string {
	return "Extract entities and their types from the text."
}

func (t *ExtractEntitiesTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type":        "array",
				"description": "An array of entities with their types.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"entity_name": map[string]any{"type": "string", "description": "The name or identifier of the entity."},
						"entity_tag":  map[string]any{"type": "string", "description": "The type or category of the entity."},
					},
					"required":             []string{"entity_name", "entity_tag"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	}
}

func (t *ExtractEntitiesTool) Validate() error {
	if t.Entities == nil {
		return fmt.Errorf("missing required field %q", "entities")
	}
	for i, e := range t.Entities {
		if e.EntityName == "" {
			return fmt.Errorf("entities[%d]: missing entity_name", i)
		}
	}
	return nil
}

// Relationship is one (source, relationship, destination) triple.
type Relationship struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Destination  string `json:"destination"`
}

func relationshipArraySchema() map[string]any {
	return map[string]any{
		"type":        "array",
		"description": "An array of relationships.",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":       map[string]any{"type": "string", "description": "The source entity of the relationship."},
				"relationship": map[string]any{"type": "string", "description": "The relationship between the source and destination entities."},
				"destination":  map[string]any{"type": "string", "description": "The destination entity of the relationship."},
			},
			"required":             []string{"source", "relationship", "destination"},
			"additionalProperties": false,
		},
	}
}

func validateRelationships(rels []Relationship) error {
	if rels == nil {
		return fmt.Errorf("missing required field %q", "relationships")
	}
	for i, r := range rels {
		if r.Source == "" || r.Relationship == "" || r.Destination == "" {
			return fmt.Errorf("relationships[%d]: incomplete triple", i)
		}
	}
	return nil
}

// EstablishRelationshipsTool is the second graph-extraction stage's output.
type EstablishRelationshipsTool struct {
	Relationships []Relationship `json:"relationships"`
}

func (t *EstablishRelationshipsTool) ToolName() string { return "establish_relationships" }
func (t *EstablishRelationshipsTool) ToolDescription() string {
	return "Establish relationships among the entities based on the provided text."
}
func (t *EstablishRelationshipsTool) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"relationships": relationshipArraySchema()},
		"required":             []string{"relationships"},
		"additionalProperties": false,
	}
}
func (t *EstablishRelationshipsTool) Validate() error { return validateRelationships(t.Relationships) }

// DeleteGraphMemoryTool lists the triples to remove.
type DeleteGraphMemoryTool struct {
	Relationships []Relationship `json:"relationships"`
}

func (t *DeleteGraphMemoryTool) ToolName() string { return "delete_graph_memory" }
func (t *DeleteGraphMemoryTool) ToolDescription() string {
	return "Delete relationships among the entities based on the provided text."
}
func (t *DeleteGraphMemoryTool) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"relationships": relationshipArraySchema()},
		"required":             []string{"relationships"},
		"additionalProperties": false,
	}
}
func (t *DeleteGraphMemoryTool) Validate() error {
	// An empty list is the common outcome: nothing contradicts.
	if t.Relationships == nil {
		return fmt.Errorf("missing required field %q", "relationships")
	}
	return nil
}

var _ = []toolschema.Tool{
	(*ExtractFactsTool)(nil), (*UpdateMemoryTool)(nil),
	(*ExtractEntitiesTool)(nil), (*EstablishRelationshipsTool)(nil), (*DeleteGraphMemoryTool)(nil),
}
