package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestComposerSubstitutionAndListJoin(t *testing.T) {
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewComposer(fixedClock(frozen))

	ch := domain.Character{
		Name:              "Aria",
		Personality:       "curious",
		Scenario:          "a quiet library",
		ExampleDialogue:   "Aria: hi",
		BackgroundStories: []string{"grew up in the city", "loves books"},
		BehaviorTraits:    []string{"polite"},
		FirstMessage:      "Hello, {{user}}!",
	}
	u := domain.User{DisplayName: "Sam"}

	prompts, err := c.Build(Input{
		SystemPromptTemplate: "You are {{char}}, talking to {{user}} at {{request_time}}.\n{{char_background_stories}}",
		Character:            ch,
		User:                 u,
		NewUserPrompt:        domain.Prompt{Role: domain.RoleUserMsg, Content: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, prompts, 3) // system, first-message, new user

	sys := prompts[0].Content
	assert.Contains(t, sys, "You are Aria, talking to Sam at")
	assert.Contains(t, sys, "2026-01-02T11:04:05+08:00")
	assert.Contains(t, sys, "\n- grew up in the city\n- loves books")

	// {{user}} in the first-message field is NOT substituted: substitution
	// only runs over the system template, so the raw
	// literal survives here, proving no cross-field recursive expansion.
	assert.Equal(t, "Hello, {{user}}!", prompts[1].Content)
}

func TestComposerOrdersHistoryAndAppendsNewUserTail(t *testing.T) {
	c := NewComposer(nil)
	history := []domain.Message{
		{
			UserMessage:      domain.MessageSide{Content: "u1", ContentType: domain.ContentText},
			AssistantMessage: domain.MessageSide{Content: "a1", ContentType: domain.ContentText},
		},
	}
	prompts, err := c.Build(Input{
		Character:     domain.Character{FirstMessage: "hi"},
		History:       history,
		NewUserPrompt: domain.Prompt{Role: domain.RoleUserMsg, Content: "u2"},
	})
	require.NoError(t, err)
	// system, first-message, (u1, a1), u2
	require.Len(t, prompts, 5)
	assert.Equal(t, "u1", prompts[2].Content)
	assert.Equal(t, "a1", prompts[3].Content)
	assert.Equal(t, "u2", prompts[4].Content)
}

func TestComposerRegenerateDropsFinalPairAndReusesLastUser(t *testing.T) {
	c := NewComposer(nil)
	history := []domain.Message{
		{
			UserMessage:      domain.MessageSide{Content: "u1", ContentType: domain.ContentText},
			AssistantMessage: domain.MessageSide{Content: "a1", ContentType: domain.ContentText},
		},
		{
			UserMessage:      domain.MessageSide{Content: "u2", ContentType: domain.ContentText},
			AssistantMessage: domain.MessageSide{Content: "a2", ContentType: domain.ContentText},
		},
	}
	prompts, err := c.Build(Input{
		Character:  domain.Character{FirstMessage: "hi"},
		History:    history,
		Regenerate: true,
	})
	require.NoError(t, err)
	// system, first-message, (u1, a1), u2 [reused tail]
	require.Len(t, prompts, 5)
	assert.Equal(t, "u2", prompts[len(prompts)-1].Content)
}

func TestComposerRegenerateWithEmptyHistoryFails(t *testing.T) {
	c := NewComposer(nil)
	_, err := c.Build(Input{Character: domain.Character{FirstMessage: "hi"}, Regenerate: true})
	assert.ErrorIs(t, err, ErrNoHistoryForRegenerate)
}

func TestFirstMessagePromptDecodesToolCall(t *testing.T) {
	raw := `{"name":"send_message","args":{"content":"hi there"}}`
	p, err := FirstMessagePrompt(raw)
	require.NoError(t, err)
	require.NotNil(t, p.ToolCall)
	assert.Equal(t, "send_message", p.ToolCall.Name)
}

func TestFirstMessagePromptPlainText(t *testing.T) {
	p, err := FirstMessagePrompt("just hello")
	require.NoError(t, err)
	assert.Nil(t, p.ToolCall)
	assert.Equal(t, "just hello", p.Content)
}
