// Package prompt implements the Prompt Composer: building an
// ordered prompt sequence from a SystemConfig template, a Character, a User,
// message history, and the new user input.
package prompt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/metastable-lab/roleplay/internal/domain"
)

// ErrNoHistoryForRegenerate is returned when Regenerate is requested against
// a session with zero committed exchanges.
var ErrNoHistoryForRegenerate = errors.New("prompt: regenerate requires at least one committed exchange")

// requestTimeZone is UTC+8, the zone {{request_time}} renders in.
var requestTimeZone = time.FixedZone("UTC+8", 8*3600)

// Clock returns the current time; Composer takes one by constructor
// injection so tests can freeze time.
type Clock func() time.Time

// Composer builds the ordered Prompt sequence for one turn.
type Composer struct {
	now Clock
}

// NewComposer returns a Composer using the given clock, or time.Now if nil.
func NewComposer(now Clock) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{now: now}
}

// Input bundles everything the composer substitutes and sequences.
type Input struct {
	SystemPromptTemplate string
	Character            domain.Character
	User                 domain.User
	// History is prior committed turns for this session, oldest first.
	History []domain.Message
	// NewUserPrompt is the caller's latest input. On Regenerate this is
	// ignored; the last history entry's user side is reused instead.
	NewUserPrompt domain.Prompt
	Regenerate    bool
	StorageLang   string
}

// Build composes the ordered prompt sequence.
func (c *Composer) Build(in Input) ([]domain.Prompt, error) {
	history := in.History
	var tail domain.Prompt
	if in.Regenerate {
		if len(history) == 0 {
			return nil, ErrNoHistoryForRegenerate
		}
		last := history[len(history)-1]
		history = history[:len(history)-1]
		tail = messageSideToPrompt(last.UserMessage)
	} else {
		tail = in.NewUserPrompt
	}

	out := make([]domain.Prompt, 0, len(history)*2+3)
	out = append(out, domain.Prompt{
		Role:        domain.RoleSystem,
		ContentType: domain.ContentText,
		Content:     c.substitute(in.SystemPromptTemplate, in.Character, in.User),
	})

	firstMessagePrompt, err := FirstMessagePrompt(in.Character.FirstMessage)
	if err != nil {
		return nil, err
	}
	out = append(out, firstMessagePrompt)

	for _, m := range history {
		out = append(out, messageSideToPrompt(m.UserMessage))
		out = append(out, messageSideToPrompt(m.AssistantMessage))
	}

	out = append(out, tail)
	return out, nil
}

// FirstMessagePrompt decodes a character's prompts_first_message
// field: a serialized send_message tool call
// decodes into a Prompt carrying that tool call; anything else is plain text.
func FirstMessagePrompt(raw string) (domain.Prompt, error) {
	var call struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal([]byte(raw), &call); err == nil && call.Name == "send_message" {
		var args map[string]any
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return domain.Prompt{}, err
		}
		return domain.Prompt{
			Role:        domain.RoleAssistant,
			ContentType: domain.ContentText,
			Content:     raw,
			ToolCall:    &domain.ToolCallPayload{Name: call.Name, Args: args},
		}, nil
	}
	return domain.Prompt{
		Role:        domain.RoleAssistant,
		ContentType: domain.ContentText,
		Content:     raw,
	}, nil
}

func messageSideToPrompt(side domain.MessageSide) domain.Prompt {
	role := domain.RoleUserMsg
	if side.ToolCall != nil {
		role = domain.RoleAssistant
	}
	return domain.Prompt{
		Role:        role,
		ContentType: side.ContentType,
		Content:     side.Content,
		ToolCall:    side.ToolCall,
	}
}

// substitute performs the single-pass, non-recursive token replacement:
// strings.NewReplacer guarantees each
// placeholder is scanned exactly once, so a user-controlled field that
// happens to contain another placeholder's literal text cannot trigger a
// second substitution pass (no injection loop).
func (c *Composer) substitute(template string, ch domain.Character, u domain.User) string {
	replacer := strings.NewReplacer(
		"{{char}}", ch.Name,
		"{{user}}", u.DisplayName,
		"{{char_personality}}", ch.Personality,
		"{{char_scenario}}", ch.Scenario,
		"{{char_example_dialogue}}", ch.ExampleDialogue,
		"{{char_background_stories}}", joinList(ch.BackgroundStories),
		"{{char_behavior_traits}}", joinList(ch.BehaviorTraits),
		"{{request_time}}", c.now().In(requestTimeZone).Format(time.RFC3339),
	)
	return replacer.Replace(template)
}

// joinList renders a list-valued field with each item on its own line,
// prefixed with "- ".
func joinList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}
