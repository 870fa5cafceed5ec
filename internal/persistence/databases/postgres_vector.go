package databases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type pgVector struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresVector returns a pgvector-backed VectorStore over the
// `embeddings` table. Schema setup is
// best-effort; CREATE EXTENSION may require superuser.
func NewPostgresVector(pool *pgxpool.Pool, dimensions int) VectorStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS embeddings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  agent_id TEXT,
  session_id TEXT,
  embedding %s,
  content TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
`, vecType))
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS embeddings_scope ON embeddings(user_id, agent_id, session_id)`)
	return &pgVector{pool: pool, dimensions: dimensions}
}

func (p *pgVector) Insert(ctx context.Context, rows []domain.EmbeddingMessage) error {
	for _, row := range rows {
		_, err := p.pool.Exec(ctx, `
INSERT INTO embeddings(id, user_id, agent_id, session_id, embedding, content, created_at, updated_at)
VALUES($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::vector, $6, $7, $8)
`, row.ID, row.UserID, row.AgentID, row.SessionID, toVectorLiteral(row.Embedding), row.Content, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert embedding %s: %w", row.ID, err)
		}
	}
	return nil
}

func (p *pgVector) Update(ctx context.Context, row domain.EmbeddingMessage) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE embeddings SET embedding=$2::vector, content=$3, updated_at=$4 WHERE id=$1
`, row.ID, toVectorLiteral(row.Embedding), row.Content, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update embedding %s: %w", row.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update embedding %s: no such row", row.ID)
	}
	return nil
}

func (p *pgVector) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM embeddings WHERE id = ANY($1)`, ids)
	return err
}

func (p *pgVector) BatchUpdate(ctx context.Context, adds []domain.EmbeddingMessage, updates []domain.EmbeddingMessage, deleteIDs []string) error {
	if len(adds) == 0 && len(updates) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("batch update: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range adds {
		_, err := tx.Exec(ctx, `
INSERT INTO embeddings(id, user_id, agent_id, session_id, embedding, content, created_at, updated_at)
VALUES($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::vector, $6, $7, $8)
`, row.ID, row.UserID, row.AgentID, row.SessionID, toVectorLiteral(row.Embedding), row.Content, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("batch update: insert %s: %w", row.ID, err)
		}
	}
	for _, row := range updates {
		tag, err := tx.Exec(ctx, `
UPDATE embeddings SET embedding=$2::vector, content=$3, updated_at=$4 WHERE id=$1
`, row.ID, toVectorLiteral(row.Embedding), row.Content, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("batch update: update %s: %w", row.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("batch update: update %s: no such row", row.ID)
		}
	}
	if len(deleteIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE id = ANY($1)`, deleteIDs); err != nil {
			return fmt.Errorf("batch update: delete: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("batch update: commit: %w", err)
	}
	return nil
}

func (p *pgVector) Search(ctx context.Context, query []float32, k int, threshold float64, f VectorFilter) ([]ScoredEmbedding, error) {
	if k <= 0 {
		k = 10
	}
	args := []any{toVectorLiteral(query), f.UserID}
	where := "WHERE user_id = $2"
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	args = append(args, k)
	q := fmt.Sprintf(`
SELECT id, user_id, COALESCE(agent_id, ''), COALESCE(session_id, ''), content, created_at, updated_at,
       1 - (embedding <=> $1::vector) AS score
FROM embeddings %s
ORDER BY embedding <=> $1::vector
LIMIT $%d`, where, len(args))
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ScoredEmbedding, 0, k)
	for rows.Next() {
		var (
			r                ScoredEmbedding
			created, updated time.Time
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.AgentID, &r.SessionID, &r.Content, &created, &updated, &r.Score); err != nil {
			return nil, err
		}
		if r.Score < threshold {
			continue
		}
		r.CreatedAt, r.UpdatedAt = created, updated
		out = append(out, r)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
