package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
	"github.com/metastable-lab/roleplay/internal/rlog"
)

// Embedder turns text into 1024-dim vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// BatchUpdateSummary accounts one reconciliation batch.
// Added+Updated+Deleted+Noop always equals the input fact count.
type BatchUpdateSummary struct {
	Added   int
	Updated int
	Deleted int
	Noop    int
}

// Reconciler is C8: it embeds new facts, gathers nearest existing memories,
// asks the update agent for per-fact decisions, re-validates them, and
// applies the batch.
type Reconciler struct {
	vectors  databases.VectorStore
	embedder Embedder
	rt       *agent.Runtime
	update   *UpdateAgent
	cfg      config.VectorConfig
	now      func() time.Time
}

// NewReconciler wires a Reconciler; clock nil means time.Now.
func NewReconciler(vectors databases.VectorStore, embedder Embedder, rt *agent.Runtime, update *UpdateAgent, cfg config.VectorConfig, clock func() time.Time) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 100
	}
	if cfg.SearchThreshold <= 0 {
		cfg.SearchThreshold = 0.7
	}
	return &Reconciler{vectors: vectors, embedder: embedder, rt: rt, update: update, cfg: cfg, now: clock}
}

// Reconcile runs the full reconciliation pass for one batch of facts.
func (r *Reconciler) Reconcile(ctx context.Context, f Filter, facts []string) (BatchUpdateSummary, error) {
	if len(facts) == 0 {
		return BatchUpdateSummary{}, nil
	}
	factVectors, err := r.embedder.Embed(ctx, facts)
	if err != nil {
		return BatchUpdateSummary{}, fmt.Errorf("embed facts: %w", err)
	}
	if len(factVectors) != len(facts) {
		return BatchUpdateSummary{}, fmt.Errorf("embedder returned %d vectors for %d facts", len(factVectors), len(facts))
	}

	filter := databases.VectorFilter{UserID: f.UserID, AgentID: f.CharacterID, SessionID: f.SessionID}
	seen := map[string]struct{}{}
	var existing []ExistingMemory
	for _, vec := range factVectors {
		hits, err := r.vectors.Search(ctx, vec, r.cfg.SearchLimit, r.cfg.SearchThreshold, filter)
		if err != nil {
			return BatchUpdateSummary{}, fmt.Errorf("search candidates: %w", err)
		}
		for _, hit := range hits {
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}
			existing = append(existing, ExistingMemory{ID: hit.ID, Content: hit.Content})
		}
	}

	resp, err := r.update.Call(ctx, r.rt, agent.Caller{UserID: f.UserID}, &UpdateInput{
		Filter:   f,
		Existing: existing,
		Facts:    facts,
	})
	if err != nil {
		return BatchUpdateSummary{}, err
	}

	ops := r.validate(ctx, resp.Tool.Memory, existing, facts)
	summary, err := r.apply(ctx, f, ops)
	if err != nil {
		return BatchUpdateSummary{}, err
	}
	summary.Noop = len(facts) - summary.Added - summary.Updated - summary.Deleted
	if summary.Noop < 0 {
		summary.Noop = 0
	}
	return summary, nil
}

// validate re-checks the prompt-enforced rules in code: UPDATE/DELETE need a known id, ADD must not carry one, and identical
// content is a NOOP. Violations are demoted to NOOP rather than failed: the
// batch stays total.
func (r *Reconciler) validate(ctx context.Context, ops []MemoryOp, existing []ExistingMemory, facts []string) []MemoryOp {
	known := make(map[string]string, len(existing))
	for _, m := range existing {
		known[m.ID] = m.Content
	}
	if len(ops) > len(facts) {
		ops = ops[:len(facts)]
	}
	out := make([]MemoryOp, 0, len(ops))
	for _, op := range ops {
		demote := false
		switch op.Event {
		case EventAdd:
			if op.ID != "" {
				demote = true
			}
			for _, content := range known {
				if content == op.Content {
					demote = true
					break
				}
			}
		case EventUpdate:
			content, ok := known[op.ID]
			if !ok || content == op.Content {
				demote = true
			}
		case EventDelete:
			if _, ok := known[op.ID]; !ok {
				demote = true
			}
		}
		if demote {
			rlog.LoggerWithTrace(ctx).Debug().
				Str("component", "memory.reconcile").
				Str("event", op.Event).
				Str("id", op.ID).
				Msg("demoting invalid memory op to noop")
			op = MemoryOp{Event: EventNoop, Content: op.Content}
		}
		out = append(out, op)
	}
	return out
}

// apply writes the decisions: inserts get fresh ids and embeddings, updates
// are re-embedded and overwritten, deletes go out in one ANY(ids) statement.
func (r *Reconciler) apply(ctx context.Context, f Filter, ops []MemoryOp) (BatchUpdateSummary, error) {
	var (
		summary   BatchUpdateSummary
		toAdd     []MemoryOp
		toUpdate  []MemoryOp
		deleteIDs []string
	)
	for _, op := range ops {
		switch op.Event {
		case EventAdd:
			toAdd = append(toAdd, op)
		case EventUpdate:
			toUpdate = append(toUpdate, op)
		case EventDelete:
			deleteIDs = append(deleteIDs, op.ID)
		}
	}

	contents := make([]string, 0, len(toAdd)+len(toUpdate))
	for _, op := range toAdd {
		contents = append(contents, op.Content)
	}
	for _, op := range toUpdate {
		contents = append(contents, op.Content)
	}
	var vectors [][]float32
	if len(contents) > 0 {
		var err error
		vectors, err = r.embedder.Embed(ctx, contents)
		if err != nil {
			return summary, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(contents) {
			return summary, fmt.Errorf("embedder returned %d vectors for %d contents", len(vectors), len(contents))
		}
	}

	now := r.now()
	addRows := make([]domain.EmbeddingMessage, 0, len(toAdd))
	for i, op := range toAdd {
		addRows = append(addRows, domain.EmbeddingMessage{
			ID:        uuid.NewString(),
			UserID:    f.UserID,
			AgentID:   f.CharacterID,
			SessionID: f.SessionID,
			Embedding: vectors[i],
			Content:   op.Content,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	updateRows := make([]domain.EmbeddingMessage, 0, len(toUpdate))
	for i, op := range toUpdate {
		updateRows = append(updateRows, domain.EmbeddingMessage{
			ID:        op.ID,
			UserID:    f.UserID,
			AgentID:   f.CharacterID,
			SessionID: f.SessionID,
			Embedding: vectors[len(toAdd)+i],
			Content:   op.Content,
			UpdatedAt: now,
		})
	}

	// One atomic batch: a failure anywhere leaves no partial mutation.
	if err := r.vectors.BatchUpdate(ctx, addRows, updateRows, deleteIDs); err != nil {
		return summary, fmt.Errorf("apply batch: %w", err)
	}
	summary.Added = len(addRows)
	summary.Updated = len(updateRows)
	summary.Deleted = len(deleteIDs)
	return summary, nil
}
