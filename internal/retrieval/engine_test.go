package retrieval_test

import (
	"context"
	"testing"

	"github.com/ideaengine/ideaengine/internal/ingest"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/internal/retrieval"
	"github.com/ideaengine/ideaengine/internal/testutil"
	"github.com/ideaengine/ideaengine/pkg/config"
)

func newEngine(t *testing.T) (*retrieval.Engine, *ingest.Orchestrator, *oracle.FakeOracle) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	fake := oracle.NewFakeOracle()
	cfg := config.DefaultConfig().Topic
	orch := ingest.New(db, fake, &cfg)
	engine := retrieval.New(db, fake, &cfg)
	return engine, orch, fake
}

// Winter-policy scenario (E1): one seed plus supportive and opposing
// ideas on the same issue, checking each retrieval surface.
func seedWinterDebate(t *testing.T, orch *ingest.Orchestrator, fake *oracle.FakeOracle) (seedID string) {
	t.Helper()
	ctx := context.Background()

	hierarchy := oracle.Hierarchy{Level1: "energy", Level2: "energy-policy", Level3: "winter-heating-subsidies"}
	texts := []string{
		"We should expand winter heating subsidies for low income households.",
		"Winter heating subsidies are a proven way to cut seasonal fuel poverty.",
		"Expanding heating subsidies this winter will help families avoid going cold.",
		"Winter heating subsidies waste public money better spent on insulation.",
		"We should not expand heating subsidies since they discourage efficiency upgrades.",
	}
	stances := []string{"pro", "pro", "pro", "con", "con"}
	for _, text := range texts {
		fake.Hierarchies[text] = hierarchy
	}

	var seed string
	for i, text := range texts {
		result, err := orch.Ingest(ctx, ingest.Input{Text: text, Metadata: map[string]any{"stance_hint": stances[i]}})
		if err != nil {
			t.Fatalf("ingest %q: %v", text, err)
		}
		if i == 0 {
			seed = result.Idea.ID
		}
	}
	return seed
}

func TestSupportiveReturnsSameStanceNeighbors(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	neighbors, err := engine.Supportive(context.Background(), seedID, 5)
	if err != nil {
		t.Fatalf("supportive: %v", err)
	}
	if len(neighbors) == 0 {
		t.Fatalf("expected at least one supportive neighbor")
	}
	for _, n := range neighbors {
		if n.StanceLabel != "pro" {
			t.Errorf("expected all supportive neighbors to carry pro stance, got %s for %q", n.StanceLabel, n.Text)
		}
	}
}

func TestOpposingReturnsOppositeStanceNeighbors(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	neighbors, err := engine.Opposing(context.Background(), seedID, 5, nil)
	if err != nil {
		t.Fatalf("opposing: %v", err)
	}
	if len(neighbors) == 0 {
		t.Fatalf("expected at least one opposing neighbor")
	}
	for _, n := range neighbors {
		if n.StanceLabel != "con" {
			t.Errorf("expected all opposing neighbors to carry con stance, got %s for %q", n.StanceLabel, n.Text)
		}
	}
}

// TestOpposingAlphaOneMatchesSeedCosineOrdering checks property 7: at
// alpha=1 the rerank formula collapses to plain seed-similarity
// ordering, since the centroid term's weight is zero.
func TestOpposingAlphaOneMatchesSeedCosineOrdering(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	alpha := 1.0
	reranked, err := engine.Opposing(context.Background(), seedID, 5, &alpha)
	if err != nil {
		t.Fatalf("opposing: %v", err)
	}
	for i := 1; i < len(reranked); i++ {
		if reranked[i-1].Similarity < reranked[i].Similarity {
			t.Errorf("expected descending similarity order at alpha=1, got %v before %v", reranked[i-1].Similarity, reranked[i].Similarity)
		}
	}
}

func TestNearbyIncludesSeedOwnTopic(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	neighbors, err := engine.Nearby(context.Background(), seedID, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(neighbors) == 0 {
		t.Fatalf("expected nearby neighbors from the seed's own topic at minimum")
	}
}

// TestRelationBucketsCachesClassifications covers E5: the first call
// issues oracle relation calls for every candidate pair, the second
// call (same seed) issues none, since every pair is now cached.
func TestRelationBucketsCachesClassifications(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	fake.Calls = map[string]int{}
	buckets, err := engine.RelationBuckets(context.Background(), seedID, 5, 0)
	if err != nil {
		t.Fatalf("relation buckets: %v", err)
	}
	firstCallCount := fake.Calls["ClassifyPairRelation"]
	if firstCallCount == 0 {
		t.Fatalf("expected oracle relation calls on first pass")
	}
	if len(buckets.Supportive) == 0 && len(buckets.Opposing) == 0 && len(buckets.Neutral) == 0 {
		t.Fatalf("expected at least one bucketed candidate")
	}

	_, err = engine.RelationBuckets(context.Background(), seedID, 5, 0)
	if err != nil {
		t.Fatalf("relation buckets second pass: %v", err)
	}
	if fake.Calls["ClassifyPairRelation"] != firstCallCount {
		t.Errorf("expected no new oracle relation calls on cached second pass, count went from %d to %d", firstCallCount, fake.Calls["ClassifyPairRelation"])
	}
}

func TestRelationBucketsWritesMirroredEdgesForSameTopicPairs(t *testing.T) {
	engine, orch, fake := newEngine(t)
	seedID := seedWinterDebate(t, orch, fake)

	_, err := engine.RelationBuckets(context.Background(), seedID, 5, 0)
	if err != nil {
		t.Fatalf("relation buckets: %v", err)
	}
	// Re-running should remain stable (idempotent upsert, no error) now
	// that every same-topic support/oppose pair has a mirrored edge.
	if _, err := engine.RelationBuckets(context.Background(), seedID, 5, 0); err != nil {
		t.Fatalf("relation buckets rerun: %v", err)
	}
}
