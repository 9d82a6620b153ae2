package edges_test

import (
	"context"
	"testing"

	"github.com/ideaengine/ideaengine/internal/edges"
	"github.com/ideaengine/ideaengine/internal/testutil"
)

func TestUpsertMirroredWritesBothDirections(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := edges.New(db.DB())
	ctx := context.Background()

	if err := store.UpsertMirrored(ctx, "a", "b", edges.TypeIdeaSimilarity, 0.8); err != nil {
		t.Fatalf("upsert mirrored: %v", err)
	}

	forward, err := store.TopWeighted(ctx, edges.TypeIdeaSimilarity, 10)
	if err != nil {
		t.Fatalf("top weighted: %v", err)
	}
	if len(forward) != 2 {
		t.Fatalf("expected both directions present, got %d edges", len(forward))
	}
}

func TestUpsertLastWriterWinsOnWeight(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := edges.New(db.DB())
	ctx := context.Background()

	if err := store.Upsert(ctx, "a", "b", edges.TypeSupport, 0.4); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, "a", "b", edges.TypeSupport, 0.9); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	top, err := store.TopWeighted(ctx, edges.TypeSupport, 10)
	if err != nil {
		t.Fatalf("top weighted: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("expected one row after upsert, got %d", len(top))
	}
	if top[0].Weight != 0.9 {
		t.Errorf("expected last writer's weight to win, got %v", top[0].Weight)
	}
}

func TestSimilarityWeightFloor(t *testing.T) {
	if w := edges.SimilarityWeight(0.0); w != 0.01 {
		t.Errorf("expected floor 0.01, got %v", w)
	}
	if w := edges.SimilarityWeight(0.5); w != 0.5 {
		t.Errorf("expected passthrough above floor, got %v", w)
	}
}

func TestRelationWeightBlendAndClamp(t *testing.T) {
	w := edges.RelationWeight(1.0, 1.0)
	if w != 1.0 {
		t.Errorf("expected 1.0 for maximal inputs, got %v", w)
	}
	w = edges.RelationWeight(0, 0)
	if w != 0 {
		t.Errorf("expected 0 for minimal inputs, got %v", w)
	}
}

func TestListHierarchy(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	store := edges.New(db.DB())
	ctx := context.Background()

	if err := store.Upsert(ctx, "parent", "child", edges.TypeTopicHierarchy, 1.0); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, err := store.ListHierarchy(ctx)
	if err != nil {
		t.Fatalf("list hierarchy: %v", err)
	}
	if len(list) != 1 || list[0].Src != "parent" || list[0].Dst != "child" {
		t.Fatalf("unexpected hierarchy edges: %+v", list)
	}
}
