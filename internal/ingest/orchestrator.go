// Package ingest implements the ingestion orchestrator: normalization,
// duplicate detection, embedding, hierarchy assignment, stance
// assignment, and neighbor-edge creation for one incoming idea.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/edges"
	"github.com/ideaengine/ideaengine/internal/ideastore"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/internal/topicstore"
	"github.com/ideaengine/ideaengine/pkg/config"
)

var log = logging.GetLogger("ingest")

// Orchestrator drives the end-to-end ingest pipeline.
type Orchestrator struct {
	db     *database.Database
	oracle oracle.Oracle
	cfg    *config.TopicConfig
}

// New returns an Orchestrator bound to db and oracle, configured by cfg.
func New(db *database.Database, o oracle.Oracle, cfg *config.TopicConfig) *Orchestrator {
	return &Orchestrator{db: db, oracle: o, cfg: cfg}
}

// Input is one incoming idea submission.
type Input struct {
	Text     string
	UserID   string
	Metadata map[string]any
}

// Result is the outcome of Ingest: the persisted idea plus its level-1
// and level-3 topic anchors.
type Result struct {
	Idea     *ideastore.Idea
	Topic    *topicstore.Topic // level 1
	Subtopic *topicstore.Topic // level 3
	IsNew    bool
}

// Ingest runs the full pipeline described by the ten steps: normalize,
// duplicate lookup, embed, classify hierarchy, upsert three topic
// levels, assign stance, update the stance centroid, persist, and
// write neighbor edges. Oracle calls happen outside any open
// transaction; persistence happens inside exactly one.
func (o *Orchestrator) Ingest(ctx context.Context, in Input) (*Result, error) {
	normalized := Normalize(in.Text)
	if !ValidateLength(normalized) {
		return nil, apperr.Validation("INVALID_LENGTH", fmt.Errorf("idea text must be between %d and %d characters after normalization, got %d", minIdeaLength, maxIdeaLength, len(normalized)))
	}
	dedupeKey := DedupeKey(normalized)

	reads := ideastore.New(o.db.DB())
	if existing, err := reads.GetByDedupeKey(ctx, dedupeKey); err != nil {
		return nil, apperr.Internal("duplicate lookup failed", err)
	} else if existing != nil {
		return o.mergeDuplicate(ctx, existing, in.Metadata)
	}

	embedding, err := o.oracle.Embed(ctx, normalized)
	if err != nil {
		return nil, apperr.Oracle("embedding failed", err)
	}

	hierarchy, err := o.oracle.ClassifyTopicHierarchy(ctx, normalized)
	if err != nil {
		return nil, apperr.Oracle("topic hierarchy classification failed", err)
	}

	result, err := o.persist(ctx, normalized, dedupeKey, embedding, hierarchy, in.Metadata)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindConflict {
			// Lost the race to a concurrent identical ingest: the
			// winner's row now satisfies the duplicate branch.
			existing, readErr := reads.GetByDedupeKey(ctx, dedupeKey)
			if readErr != nil {
				return nil, apperr.Internal("post-conflict re-read failed", readErr)
			}
			if existing != nil {
				return o.mergeDuplicate(ctx, existing, in.Metadata)
			}
		}
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) mergeDuplicate(ctx context.Context, existing *ideastore.Idea, incoming map[string]any) (*Result, error) {
	tx, err := o.db.BeginTx()
	if err != nil {
		return nil, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if len(incoming) > 0 {
		if err := ideastore.New(tx).MergeMetadata(ctx, existing.ID, incoming); err != nil {
			return nil, err
		}
	}

	topics := topicstore.New(tx)
	var topLevel, leafLevel *topicstore.Topic
	if existing.TopicID != nil {
		topLevel, err = topics.GetByID(ctx, *existing.TopicID)
		if err != nil {
			return nil, apperr.Internal("failed to load topic anchor", err)
		}
	}
	if existing.SubtopicID != nil {
		leafLevel, err = topics.GetByID(ctx, *existing.SubtopicID)
		if err != nil {
			return nil, apperr.Internal("failed to load subtopic anchor", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit duplicate merge", err)
	}

	reloaded, err := ideastore.New(o.db.DB()).GetByID(ctx, existing.ID)
	if err != nil {
		return nil, apperr.Internal("failed to reload merged idea", err)
	}
	return &Result{Idea: reloaded, Topic: topLevel, Subtopic: leafLevel, IsNew: false}, nil
}

func (o *Orchestrator) persist(ctx context.Context, normalized, dedupeKey string, embedding []float32, hierarchy oracle.Hierarchy, incomingMetadata map[string]any) (*Result, error) {
	tx, err := o.db.BeginTx()
	if err != nil {
		return nil, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	topics := topicstore.New(tx)

	level1, err := topics.UpsertTopicLevel(ctx, embedding, 1, hierarchy.Level1, nil, o.cfg.TopicSimilarityThreshold)
	if err != nil {
		return nil, err
	}
	level2, err := topics.UpsertTopicLevel(ctx, embedding, 2, hierarchy.Level2, &level1.ID, o.cfg.SubtopicSimilarityThreshold)
	if err != nil {
		return nil, err
	}
	level3, err := topics.UpsertTopicLevel(ctx, embedding, 3, hierarchy.Level3, &level2.ID, o.cfg.SubtopicSimilarityThreshold)
	if err != nil {
		return nil, err
	}

	stanceHint := ""
	if v, ok := incomingMetadata["stance_hint"]; ok {
		if s, ok := v.(string); ok {
			stanceHint = s
		}
	}
	stance := AssignStance(embedding, level3, level2, stanceHint, o.cfg.StanceConfidenceMargin)

	if err := topics.UpdateStanceCentroid(ctx, level3, embedding, stance.Label); err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	for k, v := range incomingMetadata {
		metadata[k] = v
	}
	metadata["mid_topic_id"] = level2.ID
	metadata["topic_path"] = []string{hierarchy.Level1, hierarchy.Level2, hierarchy.Level3}
	metadata["stance_score"] = stance.Score

	idea := &ideastore.Idea{
		Text:             normalized,
		DedupeKey:        dedupeKey,
		Embedding:        embedding,
		TopicID:          &level1.ID,
		MidTopicID:       &level2.ID,
		SubtopicID:       &level3.ID,
		StanceLabel:      stance.Label,
		StanceConfidence: stance.Confidence,
		Metadata:         metadata,
	}

	ideas := ideastore.New(tx)
	if err := ideas.Create(ctx, idea); err != nil {
		return nil, err
	}
	// Re-read the row so the result carries the stored created_at, the
	// same value a later duplicate ingest of this text returns.
	stored, err := ideas.GetByID(ctx, idea.ID)
	if err != nil {
		return nil, apperr.Internal("failed to reload created idea", err)
	}
	if stored != nil {
		idea = stored
	}

	if err := o.writeNeighborEdges(ctx, tx, idea, level1.ID, level2.ID, level3.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit ingest", err)
	}

	return &Result{Idea: idea, Topic: level1, Subtopic: level3, IsNew: true}, nil
}

func (o *Orchestrator) writeNeighborEdges(ctx context.Context, tx *sql.Tx, idea *ideastore.Idea, topicID, midTopicID, subtopicID string) error {
	ideas := ideastore.New(tx)

	topK := o.cfg.TopicNeighborTopK
	candidateLimit := topK
	if candidateLimit < 6 {
		candidateLimit = 6
	}

	subtree, err := ideas.SameSubtree(ctx, subtopicID, idea.Embedding, idea.ID, nil, candidateLimit)
	if err != nil {
		return err
	}
	level2, err := ideas.SameLevel2(ctx, midTopicID, idea.Embedding, idea.ID, nil, candidateLimit)
	if err != nil {
		return err
	}
	level1, err := ideas.SameLevel1(ctx, topicID, idea.Embedding, idea.ID, nil, candidateLimit)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	var merged []ideastore.Neighbor
	for _, scope := range [][]ideastore.Neighbor{subtree, level2, level1} {
		for _, n := range scope {
			if seen[n.Idea.ID] {
				continue
			}
			seen[n.Idea.ID] = true
			merged = append(merged, n)
		}
	}

	sortNeighborsDesc(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	edgeStore := edges.New(tx)
	for _, n := range merged {
		weight := edges.SimilarityWeight(n.Similarity)
		if err := edgeStore.UpsertMirrored(ctx, idea.ID, n.Idea.ID, edges.TypeIdeaSimilarity, weight); err != nil {
			return err
		}
	}
	return nil
}

func sortNeighborsDesc(neighbors []ideastore.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
}
