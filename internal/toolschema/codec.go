package toolschema

import (
	"encoding/json"
	"fmt"
)

// TextCodecVariant is one variant of a tagged-union enum: a stable
// identifier plus the prefix string used to tag it per storage
// language. CatchAll marks the variant
// that absorbs unknown prefixes or raw, unprefixed text.
type TextCodecVariant struct {
	ID       string
	Prefixes map[string]string // language tag -> prefix, e.g. {"en": "Action", "zh": "动作"}
	CatchAll bool
}

// TaggedValue is a parsed tagged-union value: which variant, and its payload.
type TaggedValue struct {
	VariantID string
	Content   string
}

// taggedJSON is the canonical on-the-wire shape: {"type": <prefix>, "content": <value>}.
type taggedJSON struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// TextCodec binds a set of variants to one emission language. Distinct
// codecs for the same variant set but different StorageLang share variant
// definitions and differ only in which prefix Emit writes.
type TextCodec struct {
	Variants    []TextCodecVariant
	StorageLang string
}

func (c TextCodec) catchAll() *TextCodecVariant {
	for i := range c.Variants {
		if c.Variants[i].CatchAll {
			return &c.Variants[i]
		}
	}
	return nil
}

func (c TextCodec) byID(id string) *TextCodecVariant {
	for i := range c.Variants {
		if c.Variants[i].ID == id {
			return &c.Variants[i]
		}
	}
	return nil
}

// Emit serializes v to the canonical {"type","content"} JSON object, using
// the prefix configured for c.StorageLang.
func (c TextCodec) Emit(v TaggedValue) (string, error) {
	variant := c.byID(v.VariantID)
	if variant == nil {
		return "", fmt.Errorf("toolschema: unknown tagged-union variant %q", v.VariantID)
	}
	prefix, ok := variant.Prefixes[c.StorageLang]
	if !ok {
		return "", fmt.Errorf("toolschema: variant %q has no prefix for language %q", v.VariantID, c.StorageLang)
	}
	raw, err := json.Marshal(taggedJSON{Type: prefix, Content: v.Content})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Parse recognizes any declared prefix in any configured language. A bare
// string (not a {"type","content"} object) or an unrecognized prefix falls
// through to the catch-all variant, if one is declared.
func (c TextCodec) Parse(raw string) (TaggedValue, error) {
	var tj taggedJSON
	if err := json.Unmarshal([]byte(raw), &tj); err != nil || tj.Type == "" {
		if catch := c.catchAll(); catch != nil {
			return TaggedValue{VariantID: catch.ID, Content: raw}, nil
		}
		return TaggedValue{}, fmt.Errorf("toolschema: %q is not a tagged value and no catch-all variant is declared", raw)
	}
	for _, variant := range c.Variants {
		for _, prefix := range variant.Prefixes {
			if prefix == tj.Type {
				return TaggedValue{VariantID: variant.ID, Content: tj.Content}, nil
			}
		}
	}
	if catch := c.catchAll(); catch != nil {
		return TaggedValue{VariantID: catch.ID, Content: tj.Content}, nil
	}
	return TaggedValue{}, fmt.Errorf("toolschema: prefix %q is not declared by any variant", tj.Type)
}

// MessagePartVariants are the six message-part kinds a roleplay reply is
// composed of, tagged in English and Chinese.
var MessagePartVariants = []TextCodecVariant{
	{ID: "action", Prefixes: map[string]string{"en": "Action", "zh": "动作"}},
	{ID: "scenario", Prefixes: map[string]string{"en": "Scenario", "zh": "场景"}},
	{ID: "inner_thoughts", Prefixes: map[string]string{"en": "InnerThoughts", "zh": "内心想法"}},
	{ID: "chat", Prefixes: map[string]string{"en": "Chat", "zh": "对话"}},
	{ID: "options", Prefixes: map[string]string{"en": "Options", "zh": "选项"}},
	{ID: "text", Prefixes: map[string]string{"en": "Text", "zh": "文本"}, CatchAll: true},
}

// NewMessagePartCodec returns the message-part TextCodec configured to emit
// in storageLang ("en" or "zh"); parsing always accepts both.
func NewMessagePartCodec(storageLang string) TextCodec {
	if storageLang == "" {
		storageLang = "en"
	}
	return TextCodec{Variants: MessagePartVariants, StorageLang: storageLang}
}
