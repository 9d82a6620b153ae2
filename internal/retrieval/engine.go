package retrieval

import (
	"context"
	"sort"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/edges"
	"github.com/ideaengine/ideaengine/internal/ideastore"
	"github.com/ideaengine/ideaengine/internal/ingest"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/internal/topicstore"
	"github.com/ideaengine/ideaengine/internal/vectorops"
	"github.com/ideaengine/ideaengine/pkg/config"
)

var log = logging.GetLogger("retrieval")

// Engine answers supportive/opposing/nearby/relation-bucket queries
// for a seed idea.
type Engine struct {
	db     *database.Database
	oracle oracle.Oracle
	cfg    *config.TopicConfig
}

// New returns an Engine bound to db and oracle, configured by cfg.
func New(db *database.Database, o oracle.Oracle, cfg *config.TopicConfig) *Engine {
	return &Engine{db: db, oracle: o, cfg: cfg}
}

func (e *Engine) loadSeed(ctx context.Context, seedID string) (*ideastore.Idea, error) {
	seed, err := ideastore.New(e.db.DB()).GetByID(ctx, seedID)
	if err != nil {
		return nil, apperr.Internal("failed to load seed idea", err)
	}
	if seed == nil {
		return nil, apperr.NotFound("idea not found")
	}
	return seed, nil
}

func perScopeLimit(topK int) int {
	limit := 4 * topK
	if limit < 24 {
		limit = 24
	}
	return limit
}

// hierarchicalMerge implements the leaves-first fusion strategy: try
// L3, then L2, then L1, stopping as soon as the deduped accumulated
// set reaches topK. Scope order is significant and must not change.
func (e *Engine) hierarchicalMerge(ctx context.Context, seed *ideastore.Idea, stance *string, topK int) ([]ideastore.Neighbor, error) {
	ideas := ideastore.New(e.db.DB())
	limit := perScopeLimit(topK)

	type scopeFn func() ([]ideastore.Neighbor, error)
	var scopes []scopeFn
	if seed.SubtopicID != nil {
		id := *seed.SubtopicID
		scopes = append(scopes, func() ([]ideastore.Neighbor, error) {
			return ideas.SameSubtree(ctx, id, seed.Embedding, seed.ID, stance, limit)
		})
	}
	if seed.MidTopicID != nil {
		id := *seed.MidTopicID
		scopes = append(scopes, func() ([]ideastore.Neighbor, error) {
			return ideas.SameLevel2(ctx, id, seed.Embedding, seed.ID, stance, limit)
		})
	}
	if seed.TopicID != nil {
		id := *seed.TopicID
		scopes = append(scopes, func() ([]ideastore.Neighbor, error) {
			return ideas.SameLevel1(ctx, id, seed.Embedding, seed.ID, stance, limit)
		})
	}

	seen := map[string]bool{}
	var accumulated []ideastore.Neighbor
	for _, scope := range scopes {
		candidates, err := scope()
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if seen[c.Idea.ID] {
				continue
			}
			seen[c.Idea.ID] = true
			accumulated = append(accumulated, c)
		}
		sortDesc(accumulated)
		if len(accumulated) >= topK {
			break
		}
	}
	return accumulated, nil
}

func sortDesc(neighbors []ideastore.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
}

func sortAsc(neighbors []ideastore.Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity < neighbors[j].Similarity
	})
}

func toViews(neighbors []ideastore.Neighbor) []NeighborView {
	views := make([]NeighborView, len(neighbors))
	for i, n := range neighbors {
		views[i] = NeighborView{
			ID:          n.Idea.ID,
			Text:        n.Idea.Text,
			Similarity:  n.Similarity,
			StanceLabel: n.Idea.StanceLabel,
			TopicID:     n.Idea.TopicID,
			SubtopicID:  n.Idea.SubtopicID,
		}
	}
	return views
}

// dedupeByTextTrim removes views sharing a normalized text key,
// keeping the first (highest-ranked) occurrence, then trims to topK.
func dedupeByTextTrim(views []NeighborView, topK int) []NeighborView {
	seen := map[string]bool{}
	var out []NeighborView
	for _, v := range views {
		key := ingest.DedupeKey(v.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) >= topK {
			break
		}
	}
	return out
}

// Supportive returns up to topK ideas sharing the seed's stance,
// biased toward the tightest topic scope.
func (e *Engine) Supportive(ctx context.Context, seedID string, topK int) ([]NeighborView, error) {
	seed, err := e.loadSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	stance := seed.StanceLabel
	merged, err := e.hierarchicalMerge(ctx, seed, &stance, topK)
	if err != nil {
		return nil, err
	}
	return dedupeByTextTrim(toViews(merged), topK), nil
}

// Opposing returns up to topK ideas carrying the opposite stance,
// re-ranked by blending seed-similarity with proximity to the
// opposite-stance centroid when one is available.
func (e *Engine) Opposing(ctx context.Context, seedID string, topK int, alphaOverride *float64) ([]NeighborView, error) {
	seed, err := e.loadSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	opp := opposite(seed.StanceLabel)
	if opp == "" {
		return nil, nil
	}

	merged, err := e.hierarchicalMerge(ctx, seed, &opp, topK)
	if err != nil {
		return nil, err
	}

	oppCentroid, ok := e.opposingCentroid(ctx, seed, opp)
	alpha := e.cfg.OpposingAlpha
	if alphaOverride != nil {
		alpha = *alphaOverride
	}
	if ok {
		for i := range merged {
			seedSim := merged[i].Similarity
			centroidSim := vectorops.Cosine(merged[i].Idea.Embedding, oppCentroid)
			merged[i].Similarity = alpha*seedSim + (1-alpha)*centroidSim
		}
		sortDesc(merged)
	} else {
		sortAsc(merged)
	}

	return dedupeByTextTrim(toViews(merged), topK), nil
}

func (e *Engine) opposingCentroid(ctx context.Context, seed *ideastore.Idea, opp string) ([]float32, bool) {
	topics := topicstore.New(e.db.DB())
	var level3, level2 *topicstore.Topic
	if seed.SubtopicID != nil {
		level3, _ = topics.GetByID(ctx, *seed.SubtopicID)
	}
	if seed.MidTopicID != nil {
		level2, _ = topics.GetByID(ctx, *seed.MidTopicID)
	}
	if level3 != nil {
		if b, ok := level3.StanceCentroids[opp]; ok {
			return b.Centroid, true
		}
	}
	if level2 != nil {
		if b, ok := level2.StanceCentroids[opp]; ok {
			return b.Centroid, true
		}
	}
	return nil, false
}

// Nearby returns topic-agnostic neighbors within the seed's related L1
// neighborhood: the seed's own L1 plus up to 7 more whose centroid
// similarity clears the fallback floor.
func (e *Engine) Nearby(ctx context.Context, seedID string, topK int) ([]NeighborView, error) {
	seed, err := e.loadSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}

	topics := topicstore.New(e.db.DB())
	allLevel1, err := topics.ListByLevel(ctx, 1)
	if err != nil {
		return nil, apperr.Internal("failed to list level-1 topics", err)
	}

	type scored struct {
		id  string
		sim float64
	}
	var ranked []scored
	for _, t := range allLevel1 {
		if seed.TopicID != nil && t.ID == *seed.TopicID {
			continue
		}
		sim := vectorops.Cosine(seed.Embedding, t.CentroidEmbedding)
		if sim >= e.cfg.FallbackSimilarityFloor {
			ranked = append(ranked, scored{id: t.ID, sim: sim})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	var relatedIDs []string
	if seed.TopicID != nil {
		relatedIDs = append(relatedIDs, *seed.TopicID)
	}
	for _, r := range ranked {
		if len(relatedIDs) >= 8 {
			break
		}
		relatedIDs = append(relatedIDs, r.id)
	}

	ideas := ideastore.New(e.db.DB())
	candidates, err := ideas.WithFilters(ctx, ideastore.Filters{TopicIDs: relatedIDs}, seed.Embedding, seed.ID, perScopeLimit(topK))
	if err != nil {
		return nil, err
	}
	sortDesc(candidates)
	return dedupeByTextTrim(toViews(candidates), topK), nil
}

// RelationBuckets partitions same-L1 candidates into supportive,
// opposing, and neutral buckets using a cached or freshly-classified
// LLM pair judgment, mirror-writing support/oppose edges for
// candidates sharing the seed's level-1 topic.
func (e *Engine) RelationBuckets(ctx context.Context, seedID string, topK, candidatePool int) (Buckets, error) {
	seed, err := e.loadSeed(ctx, seedID)
	if err != nil {
		return Buckets{}, err
	}
	if seed.TopicID == nil {
		return Buckets{}, nil
	}
	if min := 6 * topK; candidatePool < min {
		candidatePool = min
	}

	ideas := ideastore.New(e.db.DB())
	candidates, err := ideas.SameLevel1(ctx, *seed.TopicID, seed.Embedding, seed.ID, nil, candidatePool)
	if err != nil {
		return Buckets{}, err
	}

	cache := &relationCache{q: e.db.DB()}
	edgeStore := edges.New(e.db.DB())
	topicPath := extractTopicPath(seed.Metadata)

	var support, oppose, neutral []NeighborView
	for _, cand := range candidates {
		label, confidence := e.classifyPair(ctx, cache, seed, cand, topicPath)

		view := NeighborView{
			ID:            cand.Idea.ID,
			Text:          cand.Idea.Text,
			Similarity:    cand.Similarity,
			StanceLabel:   cand.Idea.StanceLabel,
			TopicID:       cand.Idea.TopicID,
			SubtopicID:    cand.Idea.SubtopicID,
			RelationLabel: label,
			RelationConf:  confidence,
		}

		if (label == "support" || label == "oppose") && cand.Idea.TopicID != nil && *cand.Idea.TopicID == *seed.TopicID {
			weight := edges.RelationWeight(confidence, cand.Similarity)
			edgeType := edges.TypeSupport
			if label == "oppose" {
				edgeType = edges.TypeOppose
			}
			if err := edgeStore.UpsertMirrored(ctx, seed.ID, cand.Idea.ID, edgeType, weight); err != nil {
				return Buckets{}, err
			}
		}

		switch label {
		case "support":
			support = append(support, view)
		case "oppose":
			oppose = append(oppose, view)
		default:
			neutral = append(neutral, view)
		}
	}

	sortByConfidenceThenSimilarity(support)
	sortByConfidenceThenSimilarity(oppose)
	sortViewsBySimilarityDesc(neutral)

	return Buckets{
		Supportive: dedupeByTextTrim(support, topK),
		Opposing:   dedupeByTextTrim(oppose, topK),
		Neutral:    dedupeByTextTrim(neutral, topK),
	}, nil
}

func (e *Engine) classifyPair(ctx context.Context, cache *relationCache, seed *ideastore.Idea, cand ideastore.Neighbor, topicPath []string) (string, float64) {
	cached, err := cache.get(ctx, seed.ID, cand.Idea.ID)
	if err != nil {
		log.Warn("relation cache read failed", "error", err)
	}
	if cached != nil {
		return cached.Label, cached.Confidence
	}

	result, err := e.oracle.ClassifyPairRelation(ctx, seed.Text, cand.Idea.Text, topicPath)
	if err != nil {
		log.Warn("relation classification failed, defaulting to neutral", "error", err)
		return "neutral", 0
	}

	label := result.Label
	if label != "support" && label != "oppose" && label != "neutral" {
		label = "neutral"
	}
	confidence := clamp01(result.Confidence)
	if err := cache.upsert(ctx, seed.ID, cand.Idea.ID, label, confidence); err != nil {
		log.Warn("relation cache write failed", "error", err)
	}
	return label, confidence
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func extractTopicPath(metadata map[string]any) []string {
	raw, ok := metadata["topic_path"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func sortByConfidenceThenSimilarity(views []NeighborView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].RelationConf != views[j].RelationConf {
			return views[i].RelationConf > views[j].RelationConf
		}
		return views[i].Similarity > views[j].Similarity
	})
}

func sortViewsBySimilarityDesc(views []NeighborView) {
	sort.Slice(views, func(i, j int) bool { return views[i].Similarity > views[j].Similarity })
}
