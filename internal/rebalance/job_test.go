package rebalance_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ideaengine/ideaengine/internal/ingest"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/internal/rebalance"
	"github.com/ideaengine/ideaengine/internal/testutil"
	"github.com/ideaengine/ideaengine/internal/topicstore"
	"github.com/ideaengine/ideaengine/pkg/config"
)

func seedLevel1(t *testing.T, orch *ingest.Orchestrator, fake *oracle.FakeOracle, topicLabel string, l3Names []string, perCluster int) {
	t.Helper()
	ctx := context.Background()
	i := 0
	for _, l3 := range l3Names {
		for c := 0; c < perCluster; c++ {
			text := fmt.Sprintf("%s idea number %d about %s detail %d", topicLabel, i, l3, c)
			// Ingest classifies the normalized text, so key the override by it.
			fake.Hierarchies[ingest.Normalize(text)] = oracle.Hierarchy{Level1: topicLabel, Level2: topicLabel + "-policy", Level3: l3}
			if _, err := orch.Ingest(ctx, ingest.Input{Text: text}); err != nil {
				t.Fatalf("seed ingest %q: %v", text, err)
			}
			i++
		}
	}
}

// TestRunSkipsLowEntropySubtree covers E4's first case: 30 ideas split
// evenly 15/15 between two L3 clusters under one L1 yield H ≈ 0.69,
// below the 1.05 trigger, so the subtree is left alone.
func TestRunSkipsLowEntropySubtree(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	fake := oracle.NewFakeOracle()
	cfg := config.DefaultConfig().Topic
	// Above 1 so no level-3 name is merged into another by similarity.
	cfg.SubtopicSimilarityThreshold = 1.01
	orch := ingest.New(db, fake, &cfg)

	seedLevel1(t, orch, fake, "lowentropy", []string{"cluster-a", "cluster-b"}, 15)

	job := rebalance.New(db, &cfg)
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TopicsRefreshed != 0 {
		t.Errorf("expected 0 topics refreshed for a low-entropy subtree, got %d", result.TopicsRefreshed)
	}
}

// TestRunReclustersHighEntropySubtree covers E4's second case: 32
// ideas spread evenly across 8 L3 clusters under one L1 yield
// H = ln 8 ≈ 2.08, above the trigger, so the subtree is reclustered
// into new children.
func TestRunReclustersHighEntropySubtree(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	fake := oracle.NewFakeOracle()
	cfg := config.DefaultConfig().Topic
	// Above 1 so no level-3 name is merged into another by similarity.
	cfg.SubtopicSimilarityThreshold = 1.01
	orch := ingest.New(db, fake, &cfg)

	l3Names := make([]string, 8)
	for i := range l3Names {
		l3Names[i] = fmt.Sprintf("cluster-%d", i)
	}
	// 32 members, 4 in each of the 8 clusters.
	seedLevel1(t, orch, fake, "highentropy", l3Names, 4)

	job := rebalance.New(db, &cfg)
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TopicsRefreshed != 1 {
		t.Fatalf("expected exactly 1 topic refreshed for a high-entropy subtree, got %d", result.TopicsRefreshed)
	}
}

// TestRunCreatesExactlyKChildrenEvenWithEmptyClusters guards against a
// recluster pass silently dropping children for k-means buckets that
// end up empty: every refreshed subtree must get exactly k new
// "/ cluster" level-2 children, never fewer. The original level-2
// child is zeroed but kept, so it is not counted.
func TestRunCreatesExactlyKChildrenEvenWithEmptyClusters(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	fake := oracle.NewFakeOracle()
	cfg := config.DefaultConfig().Topic
	// Above 1 so no level-3 name is merged into another by similarity.
	cfg.SubtopicSimilarityThreshold = 1.01
	orch := ingest.New(db, fake, &cfg)

	l3Names := make([]string, 8)
	for i := range l3Names {
		l3Names[i] = fmt.Sprintf("cluster-%d", i)
	}
	seedLevel1(t, orch, fake, "kcount", l3Names, 4)

	job := rebalance.New(db, &cfg)
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TopicsRefreshed != 1 {
		t.Fatalf("expected exactly 1 topic refreshed, got %d", result.TopicsRefreshed)
	}

	topics := topicstore.New(db.DB())
	level1, err := topics.ListByLevel(context.Background(), 1)
	if err != nil {
		t.Fatalf("list level 1: %v", err)
	}
	var parent *topicstore.Topic
	for _, tp := range level1 {
		if tp.Name == "kcount" {
			parent = tp
		}
	}
	if parent == nil {
		t.Fatalf("expected a level-1 topic named kcount")
	}

	n := len(l3Names) * 4
	wantK := clampTestK(int(math.Round(math.Sqrt(float64(n)/6))), 2, 8)

	level2, err := topics.ListByLevel(context.Background(), 2)
	if err != nil {
		t.Fatalf("list level 2: %v", err)
	}
	var childCount int
	for _, tp := range level2 {
		if tp.ParentTopicID != nil && *tp.ParentTopicID == parent.ID && strings.HasPrefix(tp.Name, parent.Name+" / cluster ") {
			childCount++
		}
	}
	if childCount != wantK {
		t.Errorf("expected exactly k=%d level-2 children, got %d", wantK, childCount)
	}
}

func clampTestK(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func TestRunSkipsBelowMinPoints(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	fake := oracle.NewFakeOracle()
	cfg := config.DefaultConfig().Topic
	orch := ingest.New(db, fake, &cfg)

	seedLevel1(t, orch, fake, "sparse", []string{"only-cluster"}, 3)

	job := rebalance.New(db, &cfg)
	result, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TopicsRefreshed != 0 {
		t.Errorf("expected subtree below recluster_min_points to be skipped, got %d refreshed", result.TopicsRefreshed)
	}
}
