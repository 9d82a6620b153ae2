package ideastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/vectorops"
)

var log = logging.GetLogger("ideastore")

// Store provides idea CRUD and scoped nearest-neighbor search against
// a single Querier.
type Store struct {
	q database.Querier
}

// New returns a Store bound to q.
func New(q database.Querier) *Store {
	return &Store{q: q}
}

const ideaColumns = `id, text, dedupe_key, embedding, topic_id, mid_topic_id, subtopic_id, stance_label, stance_confidence, metadata, created_at`

func scanIdea(row interface {
	Scan(dest ...any) error
}) (*Idea, error) {
	var i Idea
	var embeddingBlob, metadataJSON []byte
	var topicID, midTopicID, subtopicID sql.NullString

	err := row.Scan(&i.ID, &i.Text, &i.DedupeKey, &embeddingBlob, &topicID, &midTopicID,
		&subtopicID, &i.StanceLabel, &i.StanceConfidence, &metadataJSON, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan idea: %w", err)
	}

	i.Embedding, err = database.DecodeEmbedding(embeddingBlob)
	if err != nil {
		return nil, fmt.Errorf("decode idea embedding: %w", err)
	}
	if topicID.Valid {
		v := topicID.String
		i.TopicID = &v
	}
	if midTopicID.Valid {
		v := midTopicID.String
		i.MidTopicID = &v
	}
	if subtopicID.Valid {
		v := subtopicID.String
		i.SubtopicID = &v
	}
	i.Metadata = map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &i.Metadata); err != nil {
			return nil, fmt.Errorf("decode idea metadata: %w", err)
		}
	}
	return &i, nil
}

// Create inserts a new idea. DedupeKey uniqueness races are surfaced
// as *apperr.Error{Kind: KindConflict} so the orchestrator can fall
// back to the duplicate-read branch.
func (s *Store) Create(ctx context.Context, idea *Idea) error {
	if idea.ID == "" {
		idea.ID = uuid.New().String()
	}
	metadataJSON, err := json.Marshal(idea.Metadata)
	if err != nil {
		return fmt.Errorf("marshal idea metadata: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO ideas (id, text, dedupe_key, embedding, topic_id, mid_topic_id, subtopic_id, stance_label, stance_confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, idea.ID, idea.Text, idea.DedupeKey, database.EncodeEmbedding(idea.Embedding),
		nullableID(idea.TopicID), nullableID(idea.MidTopicID), nullableID(idea.SubtopicID),
		idea.StanceLabel, idea.StanceConfidence, metadataJSON)

	if isUniqueViolation(err) {
		return apperr.Conflict("duplicate idea dedupe_key", err)
	}
	if err != nil {
		return apperr.Internal("failed to create idea", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	sqliteErr, ok := err.(sqlite3.Error)
	return ok && sqliteErr.Code == sqlite3.ErrConstraint
}

func nullableID(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

// GetByID fetches an idea by id, returning (nil, nil) if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Idea, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = ?`, id)
	return scanIdea(row)
}

// GetByDedupeKey fetches an idea by its normalized duplicate key,
// returning (nil, nil) if absent.
func (s *Store) GetByDedupeKey(ctx context.Context, key string) (*Idea, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE dedupe_key = ?`, key)
	return scanIdea(row)
}

// MergeMetadata merges incoming keys over the idea's stored metadata
// (incoming wins on conflict) and persists the result.
func (s *Store) MergeMetadata(ctx context.Context, id string, incoming map[string]any) error {
	idea, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if idea == nil {
		return apperr.NotFound("idea not found")
	}
	if idea.Metadata == nil {
		idea.Metadata = map[string]any{}
	}
	for k, v := range incoming {
		idea.Metadata[k] = v
	}
	metadataJSON, err := json.Marshal(idea.Metadata)
	if err != nil {
		return fmt.Errorf("marshal merged metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `UPDATE ideas SET metadata = ? WHERE id = ?`, metadataJSON, id)
	if err != nil {
		return apperr.Internal("failed to merge idea metadata", err)
	}
	return nil
}

// ReassignSubtopic sets subtopic_id and replaces the stored metadata
// with metadata during a rebalance pass; mid_topic_id is left as it is.
func (s *Store) ReassignSubtopic(ctx context.Context, id, newSubtopicID string, metadata map[string]any) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `UPDATE ideas SET subtopic_id = ?, metadata = ? WHERE id = ?`, newSubtopicID, metadataJSON, id)
	if err != nil {
		return apperr.Internal("failed to reassign subtopic", err)
	}
	return nil
}

// ListByTopic returns every idea anchored at the given level-1 topic
// (topic_id), used by the rebalance job to load a level-1 subtree's
// members for k-means.
func (s *Store) ListByTopic(ctx context.Context, topicID string) ([]*Idea, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE topic_id = ? ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list ideas by topic: %w", err)
	}
	defer rows.Close()
	return scanIdeaRows(rows)
}

// ListRecent returns the most recently created ideas, newest first,
// used by the /map endpoint.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Idea, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+ideaColumns+` FROM ideas ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent ideas: %w", err)
	}
	defer rows.Close()
	return scanIdeaRows(rows)
}

func scanIdeaRows(rows *sql.Rows) ([]*Idea, error) {
	var out []*Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, idea)
	}
	return out, rows.Err()
}

// rank orders candidates by cosine similarity to embedding descending,
// tie-broken by id ascending for determinism, then trims to limit.
func rank(candidates []*Idea, embedding []float32, limit int) []Neighbor {
	neighbors := make([]Neighbor, len(candidates))
	for i, c := range candidates {
		neighbors[i] = Neighbor{Idea: c, Similarity: vectorops.Cosine(embedding, c.Embedding)}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].Idea.ID < neighbors[j].Idea.ID
	})
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors
}

func (s *Store) scopedQuery(ctx context.Context, whereClause string, args []any, excludeID string, stance *string) ([]*Idea, error) {
	query := `SELECT ` + ideaColumns + ` FROM ideas WHERE ` + whereClause + ` AND id != ?`
	args = append(args, excludeID)
	if stance != nil {
		query += ` AND stance_label = ?`
		args = append(args, *stance)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scoped idea query: %w", err)
	}
	defer rows.Close()
	return scanIdeaRows(rows)
}

// SameSubtree returns ideas anchored at the same level-3 subtopic.
func (s *Store) SameSubtree(ctx context.Context, subtopicID string, embedding []float32, excludeID string, stance *string, limit int) ([]Neighbor, error) {
	candidates, err := s.scopedQuery(ctx, "subtopic_id = ?", []any{subtopicID}, excludeID, stance)
	if err != nil {
		return nil, err
	}
	return rank(candidates, embedding, limit), nil
}

// SameLevel2 returns ideas anchored under sibling subtopics of the
// given level-2 topic.
func (s *Store) SameLevel2(ctx context.Context, level2ID string, embedding []float32, excludeID string, stance *string, limit int) ([]Neighbor, error) {
	candidates, err := s.scopedQuery(ctx, "mid_topic_id = ?", []any{level2ID}, excludeID, stance)
	if err != nil {
		return nil, err
	}
	return rank(candidates, embedding, limit), nil
}

// SameLevel1 returns ideas anchored at the given level-1 topic.
func (s *Store) SameLevel1(ctx context.Context, topicID string, embedding []float32, excludeID string, stance *string, limit int) ([]Neighbor, error) {
	candidates, err := s.scopedQuery(ctx, "topic_id = ?", []any{topicID}, excludeID, stance)
	if err != nil {
		return nil, err
	}
	return rank(candidates, embedding, limit), nil
}

// WithFilters returns ideas matching all of the given scope filters
// (TopicIDs matches any one of its ids), a generic version of the
// three scoped queries above.
func (s *Store) WithFilters(ctx context.Context, filters Filters, embedding []float32, excludeID string, limit int) ([]Neighbor, error) {
	var clauses []string
	var args []any

	if len(filters.TopicIDs) > 0 {
		placeholders := make([]string, len(filters.TopicIDs))
		for i, id := range filters.TopicIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "topic_id IN ("+joinPlaceholders(placeholders)+")")
	}
	if filters.MidTopicID != nil {
		clauses = append(clauses, "mid_topic_id = ?")
		args = append(args, *filters.MidTopicID)
	}
	if filters.SubtopicID != nil {
		clauses = append(clauses, "subtopic_id = ?")
		args = append(args, *filters.SubtopicID)
	}

	whereClause := "1 = 1"
	if len(clauses) > 0 {
		whereClause = clauses[0]
		for _, c := range clauses[1:] {
			whereClause += " AND " + c
		}
	}

	stance := filters.StanceLabel
	candidates, err := s.scopedQuery(ctx, whereClause, args, excludeID, stance)
	if err != nil {
		return nil, err
	}
	return rank(candidates, embedding, limit), nil
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}
