package databases

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type memoryGraph struct {
	mu        sync.RWMutex
	entities  map[string]domain.GraphEntity
	relations map[string]domain.GraphRelation
}

// NewMemoryGraph returns an in-memory GraphStore for tests.
func NewMemoryGraph() GraphStore {
	return &memoryGraph{
		entities:  make(map[string]domain.GraphEntity),
		relations: make(map[string]domain.GraphRelation),
	}
}

func (m *memoryGraph) InsertEntity(_ context.Context, e domain.GraphEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entities[e.ID]; exists {
		return fmt.Errorf("insert entity %s: duplicate id", e.ID)
	}
	e.Embedding = append([]float32(nil), e.Embedding...)
	m.entities[e.ID] = e
	return nil
}

func (m *memoryGraph) BumpEntity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("bump entity %s: no such node", id)
	}
	e.Mentions++
	e.UpdatedAt = time.Now().UTC()
	m.entities[id] = e
	return nil
}

func (m *memoryGraph) SearchEntities(_ context.Context, query []float32, userID, agentID string, limit int, minSim float64) ([]ScoredEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]ScoredEntity, 0, len(m.entities))
	for _, e := range m.entities {
		if e.UserID != userID {
			continue
		}
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		score := Cosine(query, e.Embedding)
		if score < minSim {
			continue
		}
		out = append(out, ScoredEntity{GraphEntity: e, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryGraph) MergeRelation(_ context.Context, userID, sourceID, destinationID, relationship string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for id, r := range m.relations {
		if r.UserID == userID && r.SourceID == sourceID && r.DestinationID == destinationID && r.Relationship == relationship {
			r.Mentions++
			r.UpdatedAt = now
			m.relations[id] = r
			return nil
		}
	}
	id := uuid.NewString()
	m.relations[id] = domain.GraphRelation{
		ID:            id,
		UserID:        userID,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Relationship:  relationship,
		Mentions:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (m *memoryGraph) DeleteRelation(_ context.Context, userID string, t RelationTriple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.relations {
		if r.UserID != userID || r.Relationship != t.Relationship {
			continue
		}
		src, srcOK := m.entities[r.SourceID]
		dst, dstOK := m.entities[r.DestinationID]
		if srcOK && dstOK && src.Name == t.Source && dst.Name == t.Destination {
			delete(m.relations, id)
		}
	}
	return nil
}

func (m *memoryGraph) RelationsTouching(_ context.Context, userID string, entityIDs []string) ([]RelationTriple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		ids[id] = struct{}{}
	}
	var out []RelationTriple
	for _, r := range m.relations {
		if r.UserID != userID {
			continue
		}
		_, srcHit := ids[r.SourceID]
		_, dstHit := ids[r.DestinationID]
		if srcHit || dstHit {
			out = append(out, m.triple(r))
		}
	}
	return out, nil
}

func (m *memoryGraph) Neighbors(_ context.Context, userID, entityID string) ([]RelationTriple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RelationTriple
	for _, r := range m.relations {
		if r.UserID != userID {
			continue
		}
		if r.SourceID == entityID || r.DestinationID == entityID {
			out = append(out, m.triple(r))
		}
	}
	return out, nil
}

// triple resolves node names; callers hold at least a read lock.
func (m *memoryGraph) triple(r domain.GraphRelation) RelationTriple {
	return RelationTriple{
		Source:       m.entities[r.SourceID].Name,
		Relationship: r.Relationship,
		Destination:  m.entities[r.DestinationID].Name,
	}
}
