package databases

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type memoryVector struct {
	mu   sync.RWMutex
	rows map[string]domain.EmbeddingMessage
}

// NewMemoryVector returns an in-memory VectorStore for tests.
func NewMemoryVector() VectorStore {
	return &memoryVector{rows: make(map[string]domain.EmbeddingMessage)}
}

func (m *memoryVector) Insert(_ context.Context, rows []domain.EmbeddingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		if _, exists := m.rows[row.ID]; exists {
			return fmt.Errorf("insert embedding %s: duplicate id", row.ID)
		}
		m.rows[row.ID] = copyRow(row)
	}
	return nil
}

func (m *memoryVector) Update(_ context.Context, row domain.EmbeddingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[row.ID]
	if !ok {
		return fmt.Errorf("update embedding %s: no such row", row.ID)
	}
	existing.Embedding = append([]float32(nil), row.Embedding...)
	existing.Content = row.Content
	existing.UpdatedAt = row.UpdatedAt
	m.rows[row.ID] = existing
	return nil
}

func (m *memoryVector) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.rows, id)
	}
	return nil
}

// BatchUpdate validates every mutation against the current state before
// touching it, so a bad entry leaves the store exactly as it was.
func (m *memoryVector) BatchUpdate(_ context.Context, adds []domain.EmbeddingMessage, updates []domain.EmbeddingMessage, deleteIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range adds {
		if _, exists := m.rows[row.ID]; exists {
			return fmt.Errorf("batch update: insert %s: duplicate id", row.ID)
		}
	}
	for _, row := range updates {
		if _, ok := m.rows[row.ID]; !ok {
			return fmt.Errorf("batch update: update %s: no such row", row.ID)
		}
	}
	for _, row := range adds {
		m.rows[row.ID] = copyRow(row)
	}
	for _, row := range updates {
		existing := m.rows[row.ID]
		existing.Embedding = append([]float32(nil), row.Embedding...)
		existing.Content = row.Content
		existing.UpdatedAt = row.UpdatedAt
		m.rows[row.ID] = existing
	}
	for _, id := range deleteIDs {
		delete(m.rows, id)
	}
	return nil
}

func (m *memoryVector) Search(_ context.Context, query []float32, k int, threshold float64, f VectorFilter) ([]ScoredEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	out := make([]ScoredEmbedding, 0, len(m.rows))
	for _, row := range m.rows {
		if row.UserID != f.UserID {
			continue
		}
		if f.AgentID != "" && row.AgentID != f.AgentID {
			continue
		}
		if f.SessionID != "" && row.SessionID != f.SessionID {
			continue
		}
		score := Cosine(query, row.Embedding)
		if score < threshold {
			continue
		}
		out = append(out, ScoredEmbedding{EmbeddingMessage: copyRow(row), Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func copyRow(row domain.EmbeddingMessage) domain.EmbeddingMessage {
	row.Embedding = append([]float32(nil), row.Embedding...)
	return row
}
