package roleplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/credit"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/metrics"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/prompt"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
	"github.com/metastable-lab/roleplay/internal/toolschema"
)

// MemoryTask asks the memory worker to reconcile one session's long-term
// memory. LastMessageID is the dedup key tail.
type MemoryTask struct {
	SessionID     string
	LastMessageID string
}

// MemoryPublisher is the queue the engine hands tasks to post-commit.
// Publishing is best-effort: failures are logged, never surfaced.
type MemoryPublisher interface {
	Publish(task MemoryTask) error
}

// TurnResult is what a committed turn hands back to the transport layer.
type TurnResult struct {
	Message domain.Message
	Content string
	Options []string
}

// Engine orchestrates one turn. All collaborators arrive by
// constructor injection.
type Engine struct {
	store    store.Store
	ledger   *credit.Ledger
	composer *prompt.Composer
	rt       *agent.Runtime
	codec    toolschema.TextCodec

	roleplayAgent *TurnAgent
	creationAgent *TurnAgent
	avatarAgent   *AvatarAgent

	queue   MemoryPublisher
	metrics *metrics.Collector
	now     func() time.Time
}

// NewEngine wires an Engine. queue may be nil (memory updates disabled);
// clock nil means time.Now.
func NewEngine(st store.Store, ledger *credit.Ledger, composer *prompt.Composer, rt *agent.Runtime,
	codec toolschema.TextCodec, queue MemoryPublisher, collector *metrics.Collector, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if collector == nil {
		collector = metrics.New()
	}
	return &Engine{
		store:         st,
		ledger:        ledger,
		composer:      composer,
		rt:            rt,
		codec:         codec,
		roleplayAgent: NewRoleplayAgent(),
		creationAgent: NewCharacterCreationAgent(),
		queue:         queue,
		metrics:       collector,
		now:           clock,
	}
}

// Preload reconciles both agents' system configs against the store; fatal
// at boot on failure.
func (e *Engine) Preload(ctx context.Context) error {
	if err := e.roleplayAgent.Preload(ctx, e.store); err != nil {
		return err
	}
	return e.creationAgent.Preload(ctx, e.store)
}

// SetAvatarAgent attaches the image agent; the caller preloads it. Without
// one, GenerateAvatar reports the feature unavailable.
func (e *Engine) SetAvatarAgent(a *AvatarAgent) { e.avatarAgent = a }

// GenerateAvatar runs the image agent for a character and persists the
// rehosted URL onto it, snapshotting published characters like any other
// edit. Returns the hosted URL.
func (e *Engine) GenerateAvatar(ctx context.Context, characterID string) (string, error) {
	if e.avatarAgent == nil {
		return "", rpcerr.New(rpcerr.NotFound, "roleplay.GenerateAvatar",
			errors.New("no avatar agent configured"))
	}
	var character domain.Character
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		character, err = tx.GetCharacter(ctx, characterID)
		return mapNotFound("roleplay.GenerateAvatar", err)
	})
	if err != nil {
		return "", err
	}

	in := AvatarInput{Character: character}
	resp, err := e.avatarAgent.Run(ctx, e.rt, agent.Caller{UserID: character.CreatorID}, &in)
	if err != nil {
		return "", err
	}
	hosted, ok := resp.MiscValue.(string)
	if !ok || hosted == "" {
		return "", rpcerr.New(rpcerr.Fatal, "roleplay.GenerateAvatar",
			errors.New("avatar agent returned no hosted url"))
	}

	character.AvatarURL = hosted
	if err := e.UpdateCharacter(ctx, character); err != nil {
		return "", err
	}
	return hosted, nil
}

// agentFor selects the turn agent by character feature.
func (e *Engine) agentFor(c domain.Character) *TurnAgent {
	if c.Feature == domain.FeatureCharacterCreation {
		return e.creationAgent
	}
	return e.roleplayAgent
}

// Turn runs one Continue or Regenerate exchange. Either the message is
// persisted, the session history grows, and the credit is deducted — all in
// one transaction — or none of it is observable. The memory
// task is enqueued best-effort after commit.
func (e *Engine) Turn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	var result *TurnResult
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		r, err := e.turnTx(ctx, tx, &in)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.IncTurnsProcessed()
	if in.Kind == TurnRegenerate {
		e.metrics.IncRegenerations()
	}
	e.metrics.AddCreditsDeducted(1)

	// Post-commit, outside the transaction: cancellation here only
	// suppresses the enqueue, a later task catches up.
	if e.queue != nil && ctx.Err() == nil {
		task := MemoryTask{SessionID: in.SessionID, LastMessageID: result.Message.ID}
		if err := e.queue.Publish(task); err != nil {
			rlog.LoggerWithTrace(ctx).Warn().
				Str("component", "roleplay.engine").
				Str("session_id", in.SessionID).
				Err(err).
				Msg("memory task publish failed")
		} else {
			e.metrics.IncMemoryTasksEnqueued()
		}
	}
	return result, nil
}

func (e *Engine) turnTx(ctx context.Context, tx store.Tx, in *TurnInput) (*TurnResult, error) {
	session, err := tx.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, mapNotFound("roleplay.Turn: session", err)
	}
	character, err := tx.GetCharacter(ctx, session.CharacterID)
	if err != nil {
		return nil, mapNotFound("roleplay.Turn: character", err)
	}
	user, err := tx.GetUserForUpdate(ctx, session.OwnerID)
	if err != nil {
		return nil, mapNotFound("roleplay.Turn: user", err)
	}
	history, err := tx.ListSessionMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	turnAgent := e.agentFor(character)
	prompts, err := e.composer.Build(prompt.Input{
		SystemPromptTemplate: turnAgent.SystemConfig().SystemPrompt,
		Character:            character,
		User:                 user,
		History:              history,
		NewUserPrompt:        in.UserPrompt,
		Regenerate:           in.Kind == TurnRegenerate,
	})
	if errors.Is(err, prompt.ErrNoHistoryForRegenerate) {
		return nil, rpcerr.New(rpcerr.InsufficientHistory, "roleplay.Turn", err)
	}
	if err != nil {
		return nil, err
	}
	in.prompts = prompts

	resp, err := turnAgent.Call(ctx, e.rt, agent.Caller{UserID: user.ID}, in)
	if err != nil {
		return nil, err
	}

	rendered, options, err := resp.Tool.Render(e.codec)
	if err != nil {
		return nil, rpcerr.New(rpcerr.ToolParse, "roleplay.Turn", err)
	}

	userSide := domain.MessageSide{
		Content:     in.UserPrompt.Content,
		ContentType: domain.ContentText,
	}
	kind := domain.KindLLMCall
	if in.Kind == TurnRegenerate {
		kind = domain.KindLLMCallRegenerate
		prev := history[len(history)-1]
		if err := tx.MarkMessageStale(ctx, prev.ID); err != nil {
			return nil, err
		}
		userSide = prev.UserMessage
	}

	toolArgs := map[string]any{}
	if raw, err := toolschema.ToToolCall(resp.Tool); err == nil {
		var decoded map[string]any
		if json.Unmarshal(raw.Args, &decoded) == nil {
			toolArgs = decoded
		}
	}

	msg := domain.Message{
		ID:             uuid.NewString(),
		OwnerID:        user.ID,
		SessionID:      session.ID,
		SystemConfigID: resp.SystemConfig.ID,
		UserMessage:    userSide,
		AssistantMessage: domain.MessageSide{
			Content:     rendered,
			ContentType: domain.ContentText,
			ToolCall:    &domain.ToolCallPayload{Name: resp.Tool.ToolName(), Args: toolArgs},
		},
		ModelName:       resp.SystemConfig.Model,
		UsagePrompt:     resp.Usage.PromptTokens,
		UsageCompletion: resp.Usage.CompletionTokens,
		FinishReason:    resp.FinishReason,
		Summary:         fmt.Sprintf("%s: %s\n%s: %s", user.DisplayName, userSide.Content, character.Name, rendered),
		IsMemorizeable:  true,
		IsInMemory:      true,
		CreatedAt:       e.now(),
	}
	if err := tx.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := tx.AppendSessionHistory(ctx, session.ID, msg.ID); err != nil {
		return nil, err
	}
	if err := e.ledger.PayAndLog(ctx, tx, &user, 1, kind, character.ID); err != nil {
		return nil, err
	}
	return &TurnResult{Message: msg, Content: rendered, Options: options}, nil
}

func mapNotFound(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return rpcerr.New(rpcerr.NotFound, op, err)
	}
	return err
}
