package databases

import (
	"context"

	"github.com/metastable-lab/roleplay/internal/domain"
)

// RelationTriple is one (source)-[rel]->(destination) edge with node names
// resolved, the shape the deletion agent reasons over.
type RelationTriple struct {
	Source       string
	Relationship string
	Destination  string
}

// ScoredEntity is one node hit from a vector entity search.
type ScoredEntity struct {
	domain.GraphEntity
	Score float64
}

// GraphHit is one search result: a node plus the edges one hop out in either
// direction, ordered by the node's similarity to the query.
type GraphHit struct {
	Entity ScoredEntity
	Edges  []RelationTriple
}

// GraphStore is the knowledge-graph backend.
// Node identity is (user_id, id) with vector-similarity merge handled by the
// caller via SearchEntities; the store never merges on structural equality.
type GraphStore interface {
	InsertEntity(ctx context.Context, e domain.GraphEntity) error
	// BumpEntity increments mentions and stamps updated_at on an existing node.
	BumpEntity(ctx context.Context, id string) error
	// SearchEntities returns up to limit nodes scoped by userID (and agentID
	// when non-empty) with cosine similarity >= minSim, descending.
	SearchEntities(ctx context.Context, query []float32, userID, agentID string, limit int, minSim float64) ([]ScoredEntity, error)

	// MergeRelation creates the (src)-[rel]->(dst) edge if absent, else bumps
	// mentions and updated_at.
	MergeRelation(ctx context.Context, userID, sourceID, destinationID, relationship string) error
	// DeleteRelation removes exactly the edges matching the named triple,
	// scoped by userID.
	DeleteRelation(ctx context.Context, userID string, t RelationTriple) error
	// RelationsTouching returns every edge whose source or destination node id
	// is in entityIDs, with names resolved.
	RelationsTouching(ctx context.Context, userID string, entityIDs []string) ([]RelationTriple, error)
	// Neighbors returns the edges one hop out from the node in both directions.
	Neighbors(ctx context.Context, userID, entityID string) ([]RelationTriple, error)
}
