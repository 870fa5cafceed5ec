package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type qdrantVector struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantVector returns a Qdrant-backed VectorStore, the alternate memory
// backend to pgvector. The Go client speaks Qdrant's gRPC API (port 6334 by
// default); an API key can ride on the DSN as a query parameter:
// "http://localhost:6334?api_key=your_api_key".
func NewQdrantVector(dsn string, collection string, dimensions int) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("qdrant requires dimensions > 0")
	}
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Qdrant DSN: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsedURL.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in Qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsedURL.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsedURL.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create Qdrant client: %w", err)
	}
	qv := &qdrantVector{client: client, collection: collection, dimension: dimensions}
	if err := qv.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return qv, nil
}

func (q *qdrantVector) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// pointID maps a row id onto a legal Qdrant point id. Qdrant only allows
// UUIDs and positive integers, so non-UUID ids are hashed deterministically.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err != nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	return id
}

func (q *qdrantVector) Insert(ctx context.Context, rows []domain.EmbeddingMessage) error {
	points := make([]*qdrant.PointStruct, 0, len(rows))
	for _, row := range rows {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(row.ID)),
			Vectors: qdrant.NewVectorsDense(append([]float32(nil), row.Embedding...)),
			Payload: qdrant.NewValueMap(map[string]any{
				"id":         row.ID,
				"user_id":    row.UserID,
				"agent_id":   row.AgentID,
				"session_id": row.SessionID,
				"content":    row.Content,
				"created_at": row.CreatedAt.UTC().Format(time.RFC3339Nano),
				"updated_at": row.UpdatedAt.UTC().Format(time.RFC3339Nano),
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *qdrantVector) Update(ctx context.Context, row domain.EmbeddingMessage) error {
	// Qdrant upserts by point id; created_at is carried forward by the caller.
	return q.Insert(ctx, []domain.EmbeddingMessage{row})
}

func (q *qdrantVector) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	selectors := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		selectors = append(selectors, qdrant.NewIDUUID(pointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(selectors...),
	})
	return err
}

// BatchUpdate applies the adds and updates as one upsert call and the
// deletes as one delete call. Qdrant has no multi-operation transactions;
// each call is atomic on its own, which is the closest the backend offers.
func (q *qdrantVector) BatchUpdate(ctx context.Context, adds []domain.EmbeddingMessage, updates []domain.EmbeddingMessage, deleteIDs []string) error {
	rows := make([]domain.EmbeddingMessage, 0, len(adds)+len(updates))
	rows = append(rows, adds...)
	rows = append(rows, updates...)
	if err := q.Insert(ctx, rows); err != nil {
		return fmt.Errorf("batch update: upsert: %w", err)
	}
	if err := q.Delete(ctx, deleteIDs); err != nil {
		return fmt.Errorf("batch update: delete: %w", err)
	}
	return nil
}

func (q *qdrantVector) Search(ctx context.Context, query []float32, k int, threshold float64, f VectorFilter) ([]ScoredEmbedding, error) {
	if k <= 0 {
		k = 10
	}
	must := []*qdrant.Condition{qdrant.NewMatch("user_id", f.UserID)}
	if f.AgentID != "" {
		must = append(must, qdrant.NewMatch("agent_id", f.AgentID))
	}
	if f.SessionID != "" {
		must = append(must, qdrant.NewMatch("session_id", f.SessionID))
	}
	limit := uint64(k)
	threshold32 := float32(threshold)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(append([]float32(nil), query...)),
		Limit:          &limit,
		ScoreThreshold: &threshold32,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredEmbedding, 0, len(hits))
	for _, hit := range hits {
		var r ScoredEmbedding
		r.Score = float64(hit.Score)
		if hit.Payload != nil {
			r.ID = hit.Payload["id"].GetStringValue()
			r.UserID = hit.Payload["user_id"].GetStringValue()
			r.AgentID = hit.Payload["agent_id"].GetStringValue()
			r.SessionID = hit.Payload["session_id"].GetStringValue()
			r.Content = hit.Payload["content"].GetStringValue()
			if t, err := time.Parse(time.RFC3339Nano, hit.Payload["created_at"].GetStringValue()); err == nil {
				r.CreatedAt = t
			}
			if t, err := time.Parse(time.RFC3339Nano, hit.Payload["updated_at"].GetStringValue()); err == nil {
				r.UpdatedAt = t
			}
		}
		if r.ID == "" {
			r.ID = hit.Id.GetUuid()
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *qdrantVector) Close() error { return q.client.Close() }
