package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
)

// CachedRelation is one directed row of the idea_relations cache: the
// LLM's pairwise judgment for (srcID, dstID).
type CachedRelation struct {
	SrcID      string
	DstID      string
	Label      string
	Confidence float64
	UpdatedAt  time.Time
}

type relationCache struct {
	q database.Querier
}

func (c *relationCache) get(ctx context.Context, srcID, dstID string) (*CachedRelation, error) {
	var r CachedRelation
	err := c.q.QueryRowContext(ctx, `
		SELECT src_id, dst_id, relation_label, confidence, updated_at
		FROM idea_relations WHERE src_id = ? AND dst_id = ?
	`, srcID, dstID).Scan(&r.SrcID, &r.DstID, &r.Label, &r.Confidence, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached relation: %w", err)
	}
	return &r, nil
}

func (c *relationCache) upsert(ctx context.Context, srcID, dstID, label string, confidence float64) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO idea_relations (src_id, dst_id, relation_label, confidence, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (src_id, dst_id) DO UPDATE SET relation_label = excluded.relation_label, confidence = excluded.confidence, updated_at = CURRENT_TIMESTAMP
	`, srcID, dstID, label, confidence)
	if err != nil {
		return apperr.Internal("failed to cache idea relation", err)
	}
	return nil
}
