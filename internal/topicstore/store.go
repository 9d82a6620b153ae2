package topicstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/vectorops"
)

var log = logging.GetLogger("topicstore")

// Store provides topic CRUD and centroid maintenance against a single
// Querier (either the pooled *sql.DB for reads, or a request-scoped
// *sql.Tx so ingest/rebalance writes are atomic).
type Store struct {
	q database.Querier
}

// New returns a Store bound to q.
func New(q database.Querier) *Store {
	return &Store{q: q}
}

func scanTopic(row interface {
	Scan(dest ...any) error
}) (*Topic, error) {
	var t Topic
	var centroidBlob, stanceJSON []byte
	var parentID sql.NullString

	err := row.Scan(&t.ID, &t.Level, &t.Name, &centroidBlob, &t.NPoints,
		&parentID, &stanceJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic: %w", err)
	}

	t.CentroidEmbedding, err = database.DecodeEmbedding(centroidBlob)
	if err != nil {
		return nil, fmt.Errorf("decode topic centroid: %w", err)
	}
	if parentID.Valid {
		id := parentID.String
		t.ParentTopicID = &id
	}
	t.StanceCentroids = map[string]StanceBucket{}
	if len(stanceJSON) > 0 {
		var raw map[string]StanceBucket
		if err := json.Unmarshal(stanceJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode stance centroids: %w", err)
		}
		for k, v := range raw {
			t.StanceCentroids[normalizeStanceKey(k)] = v
		}
	}
	return &t, nil
}

const topicColumns = `id, level, name, centroid_embedding, n_points, parent_topic_id, stance_centroids, created_at, updated_at`

// GetByID fetches a topic by id, returning (nil, nil) if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Topic, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
	return scanTopic(row)
}

// List returns all topics, used by the /topics and /map endpoints.
func (s *Store) List(ctx context.Context) ([]*Topic, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY level, name`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []*Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByLevel returns every topic at the given level, used by the
// nearby-topic-floor search and by the rebalance job.
func (s *Store) ListByLevel(ctx context.Context, level int) ([]*Topic, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE level = ? ORDER BY name`, level)
	if err != nil {
		return nil, fmt.Errorf("list topics by level: %w", err)
	}
	defer rows.Close()

	var out []*Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func parentScopeClause(parentID *string) (string, []any) {
	if parentID == nil {
		return "parent_topic_id IS NULL", nil
	}
	return "parent_topic_id = ?", []any{*parentID}
}

// NearestTopic finds the topic within (level, parentID) whose centroid
// is most similar to embedding by cosine.
func (s *Store) NearestTopic(ctx context.Context, embedding []float32, level int, parentID *string) (*Topic, float64, error) {
	clause, args := parentScopeClause(parentID)
	query := `SELECT ` + topicColumns + ` FROM topics WHERE level = ? AND ` + clause
	rows, err := s.q.QueryContext(ctx, query, append([]any{level}, args...)...)
	if err != nil {
		return nil, 0, fmt.Errorf("nearest topic query: %w", err)
	}
	defer rows.Close()

	var best *Topic
	var bestSim float64 = -2
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, 0, err
		}
		sim := vectorops.Cosine(embedding, t.CentroidEmbedding)
		if sim > bestSim {
			bestSim = sim
			best = t
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestSim, nil
}

func (s *Store) exactNameMatch(ctx context.Context, level int, parentID *string, name string) (*Topic, error) {
	clause, args := parentScopeClause(parentID)
	query := `SELECT ` + topicColumns + ` FROM topics WHERE level = ? AND ` + clause + ` AND name = ? COLLATE NOCASE LIMIT 1`
	row := s.q.QueryRowContext(ctx, query, append([]any{level}, append(args, name)...)...)
	return scanTopic(row)
}

// UpsertTopicLevel resolves an incoming (level, name) pair within a
// parent scope to a topic: exact case-insensitive name match first,
// else nearest topic at or above threshold, else a brand-new topic
// seeded with this embedding. On a match it applies a centroid update.
func (s *Store) UpsertTopicLevel(ctx context.Context, embedding []float32, level int, name string, parentID *string, threshold float64) (*Topic, error) {
	if existing, err := s.exactNameMatch(ctx, level, parentID, name); err != nil {
		return nil, err
	} else if existing != nil {
		if err := s.UpdateTopicCentroid(ctx, existing, embedding); err != nil {
			return nil, err
		}
		return existing, nil
	}

	nearest, sim, err := s.NearestTopic(ctx, embedding, level, parentID)
	if err != nil {
		return nil, err
	}
	if nearest != nil && sim >= threshold {
		if err := s.UpdateTopicCentroid(ctx, nearest, embedding); err != nil {
			return nil, err
		}
		return nearest, nil
	}

	return s.create(ctx, level, name, embedding, parentID)
}

func (s *Store) create(ctx context.Context, level int, name string, embedding []float32, parentID *string) (*Topic, error) {
	t := &Topic{
		ID:                uuid.New().String(),
		Level:             level,
		Name:              strings.TrimSpace(name),
		CentroidEmbedding: embedding,
		NPoints:           1,
		ParentTopicID:     parentID,
		StanceCentroids:   map[string]StanceBucket{},
	}
	stanceJSON, err := json.Marshal(t.StanceCentroids)
	if err != nil {
		return nil, fmt.Errorf("marshal stance centroids: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO topics (id, level, name, centroid_embedding, n_points, parent_topic_id, stance_centroids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, t.ID, t.Level, t.Name, database.EncodeEmbedding(t.CentroidEmbedding), t.NPoints, parentIDArg(parentID), stanceJSON)
	if err != nil {
		return nil, apperr.Internal("failed to create topic", err)
	}
	return s.GetByID(ctx, t.ID)
}

func parentIDArg(parentID *string) any {
	if parentID == nil {
		return nil
	}
	return *parentID
}

// UpdateTopicCentroid applies a running-mean update for one new
// member embedding and increments n_points, touching updated_at. The
// passed-in Topic is updated in place to reflect the new state.
func (s *Store) UpdateTopicCentroid(ctx context.Context, t *Topic, embedding []float32) error {
	newCentroid := vectorops.RunningMean(t.CentroidEmbedding, t.NPoints, embedding)
	newN := t.NPoints + 1

	_, err := s.q.ExecContext(ctx, `
		UPDATE topics SET centroid_embedding = ?, n_points = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, database.EncodeEmbedding(newCentroid), newN, t.ID)
	if err != nil {
		return apperr.Internal("failed to update topic centroid", err)
	}
	t.CentroidEmbedding = newCentroid
	t.NPoints = newN
	return nil
}

// UpdateStanceCentroid applies a running-mean update to the stance
// bucket named by stance, initializing it with n_points=1 if absent.
// The legacy "contra" key is normalized to "con" on read and rewrite.
func (s *Store) UpdateStanceCentroid(ctx context.Context, t *Topic, embedding []float32, stance string) error {
	stance = normalizeStanceKey(stance)
	if t.StanceCentroids == nil {
		t.StanceCentroids = map[string]StanceBucket{}
	}

	bucket, ok := t.StanceCentroids[stance]
	if !ok {
		bucket = StanceBucket{NPoints: 1, Centroid: cloneVec(embedding)}
	} else {
		bucket = StanceBucket{
			NPoints:  bucket.NPoints + 1,
			Centroid: vectorops.RunningMean(bucket.Centroid, bucket.NPoints, embedding),
		}
	}
	t.StanceCentroids[stance] = bucket

	stanceJSON, err := json.Marshal(t.StanceCentroids)
	if err != nil {
		return fmt.Errorf("marshal stance centroids: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE topics SET stance_centroids = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, stanceJSON, t.ID)
	if err != nil {
		return apperr.Internal("failed to update stance centroid", err)
	}
	return nil
}

// ZeroChildrenNPoints sets n_points to 0 for every level-2 child of
// parentID without deleting the rows, per the rebalance job's
// reassignment sequencing (old children are briefly still referenced
// by ideas mid-transaction).
func (s *Store) ZeroChildrenNPoints(ctx context.Context, parentID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE topics SET n_points = 0, updated_at = CURRENT_TIMESTAMP WHERE parent_topic_id = ?`, parentID)
	if err != nil {
		return apperr.Internal("failed to zero child topic counts", err)
	}
	return nil
}

// CreateChild creates a new level-2+ topic with an explicit centroid
// and n_points, used by the rebalance job to materialize cluster
// children directly rather than via the name/nearest upsert path.
func (s *Store) CreateChild(ctx context.Context, level int, name string, centroid []float32, parentID string, nPoints int) (*Topic, error) {
	t := &Topic{
		ID:                uuid.New().String(),
		Level:             level,
		Name:              name,
		CentroidEmbedding: centroid,
		NPoints:           nPoints,
		ParentTopicID:     &parentID,
		StanceCentroids:   map[string]StanceBucket{},
	}
	stanceJSON, _ := json.Marshal(t.StanceCentroids)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO topics (id, level, name, centroid_embedding, n_points, parent_topic_id, stance_centroids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, t.ID, t.Level, t.Name, database.EncodeEmbedding(t.CentroidEmbedding), t.NPoints, parentID, stanceJSON)
	if err != nil {
		return nil, apperr.Internal("failed to create topic child", err)
	}
	return t, nil
}

// SetCentroidAndStance persists a topic's centroid, n_points and stance
// buckets exactly as given, without applying a running-mean update.
func (s *Store) SetCentroidAndStance(ctx context.Context, t *Topic) error {
	stanceJSON, err := json.Marshal(t.StanceCentroids)
	if err != nil {
		return fmt.Errorf("marshal stance centroids: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE topics SET centroid_embedding = ?, n_points = ?, stance_centroids = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, database.EncodeEmbedding(t.CentroidEmbedding), t.NPoints, stanceJSON, t.ID)
	if err != nil {
		return apperr.Internal("failed to persist topic centroid/stance state", err)
	}
	return nil
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
