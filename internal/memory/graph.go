package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
	"github.com/metastable-lab/roleplay/internal/rlog"
)

// GraphMemory is C9: entity and relationship extraction, vector-similar
// entity merge, deletion reasoning, and graph mutation.
type GraphMemory struct {
	graph    databases.GraphStore
	embedder Embedder
	rt       *agent.Runtime

	entities      *EntitiesAgent
	relationships *RelationshipsAgent
	deletions     *DeleteAgent

	cfg config.GraphConfig
	now func() time.Time
}

// NewGraphMemory wires a GraphMemory; clock nil means time.Now.
func NewGraphMemory(graph databases.GraphStore, embedder Embedder, rt *agent.Runtime,
	entities *EntitiesAgent, relationships *RelationshipsAgent, deletions *DeleteAgent,
	cfg config.GraphConfig, clock func() time.Time) *GraphMemory {
	if clock == nil {
		clock = time.Now
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 100
	}
	if cfg.EntityMergeSim <= 0 {
		cfg.EntityMergeSim = 0.9
	}
	if cfg.TextSearchSim <= 0 {
		cfg.TextSearchSim = 0.7
	}
	return &GraphMemory{
		graph:         graph,
		embedder:      embedder,
		rt:            rt,
		entities:      entities,
		relationships: relationships,
		deletions:     deletions,
		cfg:           cfg,
		now:           clock,
	}
}

// Update runs the full extraction-and-mutation pipeline for one batch of
// new text.
func (g *GraphMemory) Update(ctx context.Context, f Filter, text string) error {
	caller := agent.Caller{UserID: f.UserID}

	entResp, err := g.entities.Call(ctx, g.rt, caller, &EntitiesInput{UserID: f.UserID, Text: text})
	if err != nil {
		return fmt.Errorf("extract entities: %w", err)
	}
	tags := entResp.Tool.Entities
	if len(tags) == 0 {
		return nil
	}

	relResp, err := g.relationships.Call(ctx, g.rt, caller, &RelationshipsInput{
		UserID:   f.UserID,
		Entities: tags,
		Text:     text,
	})
	if err != nil {
		return fmt.Errorf("extract relationships: %w", err)
	}
	// Restrict triples to the extracted entity set; anything
	// the model invented outside it is dropped.
	inSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		inSet[normalizeName(t.EntityName)] = struct{}{}
	}
	var triples []Relationship
	for _, rel := range relResp.Tool.Relationships {
		_, srcOK := inSet[normalizeName(rel.Source)]
		_, dstOK := inSet[normalizeName(rel.Destination)]
		if srcOK && dstOK {
			triples = append(triples, rel)
		}
	}

	// Resolve every mentioned entity to a node id, merging onto an existing
	// node when cosine similarity clears the merge threshold.
	resolved := make(map[string]string, len(tags))
	var resolvedIDs []string
	for _, t := range tags {
		id, err := g.resolveEntity(ctx, f, t.EntityName)
		if err != nil {
			return err
		}
		resolved[normalizeName(t.EntityName)] = id
		resolvedIDs = append(resolvedIDs, id)
	}

	// Deletion reasoning runs against every existing triple touching a
	// mentioned entity, not only triples fully inside the mention set.
	existing, err := g.graph.RelationsTouching(ctx, f.UserID, resolvedIDs)
	if err != nil {
		return fmt.Errorf("load existing triples: %w", err)
	}
	if len(existing) > 0 {
		delResp, err := g.deletions.Call(ctx, g.rt, caller, &DeleteInput{
			UserID:   f.UserID,
			Existing: existing,
			Text:     text,
		})
		if err != nil {
			return fmt.Errorf("deletion reasoning: %w", err)
		}
		for _, rel := range delResp.Tool.Relationships {
			err := g.graph.DeleteRelation(ctx, f.UserID, databases.RelationTriple{
				Source:       rel.Source,
				Relationship: rel.Relationship,
				Destination:  rel.Destination,
			})
			if err != nil {
				return fmt.Errorf("delete triple: %w", err)
			}
		}
	}

	for _, rel := range triples {
		srcID := resolved[normalizeName(rel.Source)]
		dstID := resolved[normalizeName(rel.Destination)]
		if err := g.graph.MergeRelation(ctx, f.UserID, srcID, dstID, rel.Relationship); err != nil {
			return fmt.Errorf("merge triple: %w", err)
		}
	}
	rlog.LoggerWithTrace(ctx).Debug().
		Str("component", "memory.graph").
		Str("user_id", f.UserID).
		Int("entities", len(tags)).
		Int("triples", len(triples)).
		Msg("graph memory updated")
	return nil
}

// resolveEntity returns the node id for name, reusing a vector-similar
// node (similarity >= sigma_merge) or inserting a fresh one.
func (g *GraphMemory) resolveEntity(ctx context.Context, f Filter, name string) (string, error) {
	vecs, err := g.embedder.Embed(ctx, []string{name})
	if err != nil {
		return "", fmt.Errorf("embed entity %q: %w", name, err)
	}
	hits, err := g.graph.SearchEntities(ctx, vecs[0], f.UserID, f.CharacterID, 1, g.cfg.EntityMergeSim)
	if err != nil {
		return "", fmt.Errorf("search entity %q: %w", name, err)
	}
	if len(hits) > 0 {
		if err := g.graph.BumpEntity(ctx, hits[0].ID); err != nil {
			return "", err
		}
		return hits[0].ID, nil
	}
	now := g.now()
	entity := domain.GraphEntity{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    f.UserID,
		AgentID:   f.CharacterID,
		Embedding: vecs[0],
		Mentions:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.graph.InsertEntity(ctx, entity); err != nil {
		return "", err
	}
	return entity.ID, nil
}

// Search embeds each query name, k-NN searches the nodes at sigma_text, and
// expands one edge hop per hit, returning at most the configured limit
// ordered by similarity descending.
func (g *GraphMemory) Search(ctx context.Context, f Filter, names []string) ([]databases.GraphHit, error) {
	if len(names) == 0 {
		return nil, nil
	}
	vecs, err := g.embedder.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	seen := map[string]struct{}{}
	var out []databases.GraphHit
	for _, vec := range vecs {
		hits, err := g.graph.SearchEntities(ctx, vec, f.UserID, f.CharacterID, g.cfg.SearchLimit, g.cfg.TextSearchSim)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}
			edges, err := g.graph.Neighbors(ctx, f.UserID, hit.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, databases.GraphHit{Entity: hit, Edges: edges})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity.Score > out[j].Entity.Score })
	if len(out) > g.cfg.SearchLimit {
		out = out[:g.cfg.SearchLimit]
	}
	return out, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
