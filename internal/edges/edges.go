// Package edges implements the graph edge layer: a denormalized view
// over similarity and relation-classification results, upserted by
// ordered pair and mirrored where the spec calls for both directions.
package edges

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
)

// EdgeType enumerates the four edge kinds the graph carries.
type EdgeType string

const (
	TypeIdeaSimilarity EdgeType = "idea_similarity"
	TypeSupport        EdgeType = "support"
	TypeOppose         EdgeType = "oppose"
	TypeTopicHierarchy EdgeType = "topic_hierarchy"
)

// Edge is one directed row of the graph.
type Edge struct {
	Src       string
	Dst       string
	EdgeType  EdgeType
	Weight    float64
	CreatedAt time.Time
}

// Store writes and reads edges against a single Querier.
type Store struct {
	q database.Querier
}

// New returns a Store bound to q.
func New(q database.Querier) *Store {
	return &Store{q: q}
}

// clampWeight confines a weight to [0,1] per the spec's edge invariant.
func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// Upsert writes (or last-writer-wins overwrites) a single directed
// edge.
func (s *Store) Upsert(ctx context.Context, src, dst string, edgeType EdgeType, weight float64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (src, dst, edge_type, weight, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (src, dst) DO UPDATE SET edge_type = excluded.edge_type, weight = excluded.weight
	`, src, dst, string(edgeType), clampWeight(weight))
	if err != nil {
		return apperr.Internal("failed to upsert edge", err)
	}
	return nil
}

// UpsertMirrored writes both (a,b) and (b,a) with the same type and
// weight. Both writes happen against the same Querier the Store was
// constructed with, so when that Querier is a request-scoped
// transaction the mirror is atomic with the caller's other writes.
func (s *Store) UpsertMirrored(ctx context.Context, a, b string, edgeType EdgeType, weight float64) error {
	if err := s.Upsert(ctx, a, b, edgeType, weight); err != nil {
		return err
	}
	return s.Upsert(ctx, b, a, edgeType, weight)
}

// SimilarityWeight applies the spec's floor so a positive similarity
// edge is never recorded with a zero weight.
func SimilarityWeight(similarity float64) float64 {
	if similarity < 0.01 {
		return 0.01
	}
	return similarity
}

// RelationWeight blends a classifier confidence with the underlying
// cosine similarity for support/oppose edges.
func RelationWeight(confidence, similarity float64) float64 {
	return clampWeight(0.55*confidence + 0.45*similarity)
}

const edgeColumns = `src, dst, edge_type, weight, created_at`

func scanEdge(row interface {
	Scan(dest ...any) error
}) (*Edge, error) {
	var e Edge
	var edgeType string
	if err := row.Scan(&e.Src, &e.Dst, &edgeType, &e.Weight, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan edge: %w", err)
	}
	e.EdgeType = EdgeType(edgeType)
	return &e, nil
}

// TopWeighted returns up to limit edges of the given type ordered by
// weight descending, used by the /map endpoint.
func (s *Store) TopWeighted(ctx context.Context, edgeType EdgeType, limit int) ([]*Edge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges WHERE edge_type = ? ORDER BY weight DESC, src, dst LIMIT ?
	`, string(edgeType), limit)
	if err != nil {
		return nil, fmt.Errorf("list top weighted edges: %w", err)
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, rows.Err()
}

// ListHierarchy returns every topic_hierarchy edge, used by /map to
// render the topic tree's parent-child links.
func (s *Store) ListHierarchy(ctx context.Context) ([]*Edge, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE edge_type = ?`, string(TypeTopicHierarchy))
	if err != nil {
		return nil, fmt.Errorf("list hierarchy edges: %w", err)
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
