package ingest

import (
	"testing"

	"github.com/ideaengine/ideaengine/internal/topicstore"
)

func TestAssignStanceSymmetricDistanceIsNeutral(t *testing.T) {
	level3 := &topicstore.Topic{
		StanceCentroids: map[string]topicstore.StanceBucket{
			"pro": {NPoints: 1, Centroid: []float32{1, 0}},
			"con": {NPoints: 1, Centroid: []float32{0, 1}},
		},
	}
	embedding := []float32{0.70710678, 0.70710678} // equidistant from both
	result := AssignStance(embedding, level3, nil, "", 0.04)
	if result.Label != "neutral" {
		t.Errorf("expected neutral for equidistant embedding, got %s", result.Label)
	}
}

func TestAssignStancePicksProWhenCloser(t *testing.T) {
	level3 := &topicstore.Topic{
		StanceCentroids: map[string]topicstore.StanceBucket{
			"pro": {NPoints: 1, Centroid: []float32{1, 0}},
			"con": {NPoints: 1, Centroid: []float32{0, 1}},
		},
	}
	result := AssignStance([]float32{1, 0}, level3, nil, "", 0.04)
	if result.Label != "pro" {
		t.Errorf("expected pro, got %s", result.Label)
	}
}

func TestAssignStanceFallsBackToLevel2Buckets(t *testing.T) {
	level3 := &topicstore.Topic{StanceCentroids: map[string]topicstore.StanceBucket{}}
	level2 := &topicstore.Topic{
		StanceCentroids: map[string]topicstore.StanceBucket{
			"pro": {NPoints: 1, Centroid: []float32{1, 0}},
			"con": {NPoints: 1, Centroid: []float32{0, 1}},
		},
	}
	result := AssignStance([]float32{1, 0}, level3, level2, "", 0.04)
	if result.Label != "pro" {
		t.Errorf("expected level-2 fallback to classify pro, got %s", result.Label)
	}
}

func TestAssignStanceColdStartUsesHint(t *testing.T) {
	level3 := &topicstore.Topic{StanceCentroids: map[string]topicstore.StanceBucket{}}
	result := AssignStance([]float32{1, 0}, level3, nil, "con", 0.04)
	if result.Label != "con" {
		t.Errorf("expected cold-start hint to set con, got %s", result.Label)
	}
	if result.Confidence != 0 {
		t.Errorf("expected confidence 0.0 on cold start, got %v", result.Confidence)
	}
}

func TestAssignStanceColdStartDefaultsNeutral(t *testing.T) {
	level3 := &topicstore.Topic{StanceCentroids: map[string]topicstore.StanceBucket{}}
	result := AssignStance([]float32{1, 0}, level3, nil, "", 0.04)
	if result.Label != "neutral" {
		t.Errorf("expected default neutral with no hint, got %s", result.Label)
	}
}
