package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type pgGraph struct {
	pool *pgxpool.Pool
}

// NewPostgresGraph returns an adjacency-table GraphStore: graph_entities
// carries the vector-indexed nodes, graph_relations the typed edges. MERGE
// becomes INSERT ... ON CONFLICT, vector-KNN is a pgvector ORDER BY.
func NewPostgresGraph(pool *pgxpool.Pool, dimensions int) GraphStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS graph_entities (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  agent_id TEXT,
  name TEXT NOT NULL,
  embedding %s,
  mentions INT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
`, vecType))
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_relations (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  source_id TEXT NOT NULL REFERENCES graph_entities(id) ON DELETE CASCADE,
  destination_id TEXT NOT NULL REFERENCES graph_entities(id) ON DELETE CASCADE,
  relationship TEXT NOT NULL,
  mentions INT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE(user_id, source_id, destination_id, relationship)
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_entities_scope ON graph_entities(user_id, agent_id)`)
	return &pgGraph{pool: pool}
}

func (g *pgGraph) InsertEntity(ctx context.Context, e domain.GraphEntity) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_entities(id, user_id, agent_id, name, embedding, mentions, created_at, updated_at)
VALUES($1, $2, NULLIF($3, ''), $4, $5::vector, $6, $7, $8)
`, e.ID, e.UserID, e.AgentID, e.Name, toVectorLiteral(e.Embedding), e.Mentions, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert entity %q: %w", e.Name, err)
	}
	return nil
}

func (g *pgGraph) BumpEntity(ctx context.Context, id string) error {
	_, err := g.pool.Exec(ctx, `
UPDATE graph_entities SET mentions = mentions + 1, updated_at = $2 WHERE id = $1
`, id, time.Now().UTC())
	return err
}

func (g *pgGraph) SearchEntities(ctx context.Context, query []float32, userID, agentID string, limit int, minSim float64) ([]ScoredEntity, error) {
	if limit <= 0 {
		limit = 10
	}
	args := []any{toVectorLiteral(query), userID}
	where := "WHERE user_id = $2"
	if agentID != "" {
		args = append(args, agentID)
		where += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	args = append(args, limit)
	q := fmt.Sprintf(`
SELECT id, user_id, COALESCE(agent_id, ''), name, mentions, created_at, updated_at,
       1 - (embedding <=> $1::vector) AS score
FROM graph_entities %s
ORDER BY embedding <=> $1::vector
LIMIT $%d`, where, len(args))
	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ScoredEntity, 0, limit)
	for rows.Next() {
		var e ScoredEntity
		if err := rows.Scan(&e.ID, &e.UserID, &e.AgentID, &e.Name, &e.Mentions, &e.CreatedAt, &e.UpdatedAt, &e.Score); err != nil {
			return nil, err
		}
		if e.Score < minSim {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g *pgGraph) MergeRelation(ctx context.Context, userID, sourceID, destinationID, relationship string) error {
	now := time.Now().UTC()
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_relations(id, user_id, source_id, destination_id, relationship, mentions, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, 1, $6, $6)
ON CONFLICT (user_id, source_id, destination_id, relationship)
DO UPDATE SET mentions = graph_relations.mentions + 1, updated_at = EXCLUDED.updated_at
`, uuid.NewString(), userID, sourceID, destinationID, relationship, now)
	return err
}

func (g *pgGraph) DeleteRelation(ctx context.Context, userID string, t RelationTriple) error {
	_, err := g.pool.Exec(ctx, `
DELETE FROM graph_relations r
USING graph_entities s, graph_entities d
WHERE r.source_id = s.id AND r.destination_id = d.id
  AND r.user_id = $1 AND r.relationship = $2
  AND s.name = $3 AND d.name = $4
`, userID, t.Relationship, t.Source, t.Destination)
	return err
}

func (g *pgGraph) RelationsTouching(ctx context.Context, userID string, entityIDs []string) ([]RelationTriple, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := g.pool.Query(ctx, `
SELECT s.name, r.relationship, d.name
FROM graph_relations r
JOIN graph_entities s ON r.source_id = s.id
JOIN graph_entities d ON r.destination_id = d.id
WHERE r.user_id = $1 AND (r.source_id = ANY($2) OR r.destination_id = ANY($2))
`, userID, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriples(rows)
}

func (g *pgGraph) Neighbors(ctx context.Context, userID, entityID string) ([]RelationTriple, error) {
	rows, err := g.pool.Query(ctx, `
SELECT s.name, r.relationship, d.name
FROM graph_relations r
JOIN graph_entities s ON r.source_id = s.id
JOIN graph_entities d ON r.destination_id = d.id
WHERE r.user_id = $1 AND (r.source_id = $2 OR r.destination_id = $2)
`, userID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriples(rows)
}

type triplesScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTriples(rows triplesScanner) ([]RelationTriple, error) {
	var out []RelationTriple
	for rows.Next() {
		var t RelationTriple
		if err := rows.Scan(&t.Source, &t.Relationship, &t.Destination); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
