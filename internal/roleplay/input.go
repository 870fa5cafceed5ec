package roleplay

import "github.com/metastable-lab/roleplay/internal/domain"

// TurnKind discriminates the engine's input union.
type TurnKind int

const (
	// TurnContinue appends a fresh user prompt to the session.
	TurnContinue TurnKind = iota
	// TurnRegenerate re-runs the last exchange, marking the previous
	// assistant reply stale.
	TurnRegenerate
)

// TurnInput is one turn request. Construct via Continue or Regenerate; the
// engine fills prompts inside its transaction before handing the input to
// the selected agent.
type TurnInput struct {
	Kind       TurnKind
	SessionID  string
	UserPrompt domain.Prompt

	prompts []domain.Prompt
}

// Continue builds the input for a normal turn.
func Continue(sessionID, userText string) TurnInput {
	return TurnInput{
		Kind:      TurnContinue,
		SessionID: sessionID,
		UserPrompt: domain.Prompt{
			Role:        domain.RoleUserMsg,
			ContentType: domain.ContentText,
			Content:     userText,
		},
	}
}

// Regenerate builds the input for re-running the last exchange.
func Regenerate(sessionID string) TurnInput {
	return TurnInput{Kind: TurnRegenerate, SessionID: sessionID}
}
