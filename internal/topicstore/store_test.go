package topicstore_test

import (
	"context"
	"math"
	"testing"

	"github.com/ideaengine/ideaengine/internal/testutil"
	"github.com/ideaengine/ideaengine/internal/topicstore"
)

func vec(xs ...float32) []float32 { return xs }

func TestUpsertTopicLevelCreatesNewWhenEmpty(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	topic, err := store.UpsertTopicLevel(ctx, vec(1, 0, 0), 1, "housing", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if topic.NPoints != 1 {
		t.Errorf("expected n_points=1 for new topic, got %d", topic.NPoints)
	}
	if topic.Level != 1 {
		t.Errorf("expected level 1, got %d", topic.Level)
	}
}

func TestUpsertTopicLevelExactNameMatchIsCaseInsensitive(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	first, err := store.UpsertTopicLevel(ctx, vec(1, 0, 0), 1, "Housing", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.UpsertTopicLevel(ctx, vec(0, 1, 0), 1, "HOUSING", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected case-insensitive name match to reuse topic, got %s vs %s", first.ID, second.ID)
	}
	if second.NPoints != 2 {
		t.Errorf("expected n_points=2 after second upsert, got %d", second.NPoints)
	}
}

func TestUpsertTopicLevelNearestWithinThreshold(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	first, err := store.UpsertTopicLevel(ctx, vec(1, 0, 0), 1, "housing", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Nearly identical embedding, different name: similarity is high so it should merge.
	second, err := store.UpsertTopicLevel(ctx, vec(0.99, 0.01, 0), 1, "renting", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected nearest-topic merge above threshold, got distinct topics")
	}
}

func TestUpsertTopicLevelCreatesDistinctWhenBelowThreshold(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	first, err := store.UpsertTopicLevel(ctx, vec(1, 0, 0), 1, "housing", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.UpsertTopicLevel(ctx, vec(0, 1, 0), 1, "transit", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct topics for orthogonal embeddings below threshold")
	}
}

func TestUpdateStanceCentroidRunningMean(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	topic, err := store.UpsertTopicLevel(ctx, vec(1, 0), 3, "leaf", nil, 0.70)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.UpdateStanceCentroid(ctx, topic, vec(1, 1), "pro"); err != nil {
		t.Fatalf("update stance: %v", err)
	}
	if err := store.UpdateStanceCentroid(ctx, topic, vec(3, 3), "pro"); err != nil {
		t.Fatalf("update stance: %v", err)
	}

	bucket := topic.StanceCentroids["pro"]
	if bucket.NPoints != 2 {
		t.Fatalf("expected 2 points in pro bucket, got %d", bucket.NPoints)
	}
	want := []float32{2, 2}
	for i := range want {
		if math.Abs(float64(bucket.Centroid[i]-want[i])) > 1e-6 {
			t.Errorf("index %d: expected %v, got %v", i, want[i], bucket.Centroid[i])
		}
	}
}

func TestLegacyContraKeyNormalizedToCon(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	topic, err := store.UpsertTopicLevel(ctx, vec(1, 0), 3, "leaf", nil, 0.70)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	topic.StanceCentroids["contra"] = topicstore.StanceBucket{NPoints: 1, Centroid: vec(5, 5)}
	if err := store.SetCentroidAndStance(ctx, topic); err != nil {
		t.Fatalf("persist: %v", err)
	}

	reloaded, err := store.GetByID(ctx, topic.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := reloaded.StanceCentroids["contra"]; ok {
		t.Errorf("expected legacy contra key to be normalized away")
	}
	if _, ok := reloaded.StanceCentroids["con"]; !ok {
		t.Errorf("expected legacy contra key normalized to con")
	}
}

func TestZeroChildrenNPoints(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := topicstore.New(db.DB())
	ctx := context.Background()

	parent, err := store.UpsertTopicLevel(ctx, vec(1, 0), 1, "parent", nil, 0.62)
	if err != nil {
		t.Fatalf("upsert parent: %v", err)
	}
	child, err := store.CreateChild(ctx, 2, "child", vec(1, 0), parent.ID, 5)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := store.ZeroChildrenNPoints(ctx, parent.ID); err != nil {
		t.Fatalf("zero children: %v", err)
	}
	reloaded, err := store.GetByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if reloaded.NPoints != 0 {
		t.Errorf("expected n_points=0 after zeroing, got %d", reloaded.NPoints)
	}
}
