package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/metrics"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/roleplay"
)

// workingContextSize is the number of most-recent memorizeable messages
// kept out of extraction as live conversation context.
const workingContextSize = 6

// minWindowSize is the minimum number of messages beyond the working
// context required before extraction runs.
const minWindowSize = 6

// Updater runs one memory task end to end: fact extraction (C7), vector
// reconciliation (C8), and graph update (C9).
type Updater struct {
	store      store.Store
	rt         *agent.Runtime
	facts      *FactsAgent
	reconciler *Reconciler
	graph      *GraphMemory
	metrics    *metrics.Collector
	now        func() time.Time
}

// NewUpdater wires an Updater; collector and clock may be nil.
func NewUpdater(st store.Store, rt *agent.Runtime, facts *FactsAgent, reconciler *Reconciler, graph *GraphMemory, collector *metrics.Collector, clock func() time.Time) *Updater {
	if collector == nil {
		collector = metrics.New()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Updater{store: st, rt: rt, facts: facts, reconciler: reconciler, graph: graph, metrics: collector, now: clock}
}

// Preload reconciles every memory agent's system config; fatal at boot on
// failure.
func (u *Updater) Preload(ctx context.Context) error {
	if err := u.facts.Preload(ctx, u.store); err != nil {
		return err
	}
	if err := u.reconciler.update.Preload(ctx, u.store); err != nil {
		return err
	}
	for _, preload := range []func(context.Context, store.Store) error{
		u.graph.entities.Preload, u.graph.relationships.Preload, u.graph.deletions.Preload,
	} {
		if err := preload(ctx, u.store); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMemory processes one task. Too little history is a silent skip —
// the next turn's task will catch up (the pipeline is idempotent on
// stable input).
func (u *Updater) UpdateMemory(ctx context.Context, task roleplay.MemoryTask) error {
	var (
		filter  Filter
		rawText string
		window  []domain.Message
	)
	err := u.store.WithTx(ctx, func(tx store.Tx) error {
		messages, err := tx.ListMemorizeableMessages(ctx, task.SessionID)
		if err != nil {
			return err
		}
		if len(messages) < workingContextSize+minWindowSize {
			return errSkip
		}
		window = messages[workingContextSize:]

		session, err := tx.GetSession(ctx, task.SessionID)
		if err != nil {
			return err
		}
		character, err := tx.GetCharacter(ctx, session.CharacterID)
		if err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, session.OwnerID)
		if err != nil {
			return err
		}

		// Character-scoped memory spans sessions unless the session opted
		// out or the character is a creation guide; then memory stays
		// session-local.
		sessionScope := ""
		if !session.UseCharacterMemory || character.Feature == domain.FeatureCharacterCreation {
			sessionScope = session.ID
		}
		filter = Filter{UserID: user.ID, CharacterID: character.ID, SessionID: sessionScope}

		var summaries []string
		for _, m := range window {
			if m.Summary != "" {
				summaries = append(summaries, m.Summary)
			}
		}
		rawText = strings.Join(summaries, "\n")
		return nil
	})
	if errors.Is(err, errSkip) {
		rlog.LoggerWithTrace(ctx).Info().
			Str("component", "memory.updater").
			Str("session_id", task.SessionID).
			Msg("too little history to update memory")
		return nil
	}
	if err != nil {
		return err
	}

	factsResp, err := u.facts.Call(ctx, u.rt, agent.Caller{UserID: filter.UserID}, &FactsInput{
		Filter:     filter,
		NewMessage: rawText,
	})
	if err != nil {
		return err
	}
	facts := factsResp.Tool.Facts
	u.metrics.AddFactsExtracted(int64(len(facts)))

	// The zero-point consumption row is the audit record of the run, and the
	// consumed window's in-memory flip rides the same transaction
	//.
	err = u.store.WithTx(ctx, func(tx store.Tx) error {
		ids := make([]string, 0, len(window))
		for _, m := range window {
			ids = append(ids, m.ID)
		}
		if err := tx.MarkMessagesInMemory(ctx, ids); err != nil {
			return err
		}
		return tx.InsertConsumption(ctx, domain.UserPointsConsumption{
			ID:          uuid.NewString(),
			UserID:      filter.UserID,
			Kind:        domain.KindMemoryUpdate,
			CharacterID: filter.CharacterID,
			CreatedAt:   u.now(),
		})
	})
	if err != nil {
		return err
	}

	if len(facts) == 0 {
		return nil
	}
	summary, err := u.reconciler.Reconcile(ctx, filter, facts)
	if err != nil {
		return err
	}
	rlog.LoggerWithTrace(ctx).Info().
		Str("component", "memory.updater").
		Str("session_id", task.SessionID).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("deleted", summary.Deleted).
		Int("noop", summary.Noop).
		Msg("vector memory reconciled")

	if err := u.graph.Update(ctx, filter, rawText); err != nil {
		return err
	}
	u.metrics.IncMemoryTasksProcessed()
	return nil
}

var errSkip = errors.New("memory: window below threshold")
