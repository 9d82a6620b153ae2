package ingest

import (
	"strings"

	"github.com/ideaengine/ideaengine/internal/topicstore"
	"github.com/ideaengine/ideaengine/internal/vectorops"
)

// StanceResult is the outcome of assigning a stance to a new idea.
type StanceResult struct {
	Label      string // pro, neutral, con
	Score      float64
	Confidence float64
}

func resolveStanceBucket(level3, level2 *topicstore.Topic, stance string) ([]float32, bool) {
	if level3 != nil {
		if b, ok := level3.StanceCentroids[stance]; ok {
			return b.Centroid, true
		}
	}
	if level2 != nil {
		if b, ok := level2.StanceCentroids[stance]; ok {
			return b.Centroid, true
		}
	}
	return nil, false
}

// normalizeStanceHint maps a free-form LLM hint to {pro, neutral, con},
// defaulting to neutral for anything unrecognized.
func normalizeStanceHint(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "pro", "support", "supportive":
		return "pro"
	case "con", "contra", "against", "oppose", "opposing":
		return "con"
	default:
		return "neutral"
	}
}

// AssignStance implements the spec's cold-start-aware classifier:
// cosine against level-3's pro/con stance buckets (falling back to
// level-2's), or an LLM-provided hint when either bucket is absent.
func AssignStance(embedding []float32, level3, level2 *topicstore.Topic, stanceHint string, margin float64) StanceResult {
	proCentroid, hasPro := resolveStanceBucket(level3, level2, "pro")
	conCentroid, hasCon := resolveStanceBucket(level3, level2, "con")

	if hasPro && hasCon {
		p := vectorops.Cosine(embedding, proCentroid)
		c := vectorops.Cosine(embedding, conCentroid)
		score := p - c
		label := "neutral"
		if diff := score; absF(diff) >= margin {
			if score > 0 {
				label = "pro"
			} else {
				label = "con"
			}
		}
		return StanceResult{Label: label, Score: score, Confidence: absF(score)}
	}

	return StanceResult{Label: normalizeStanceHint(stanceHint), Score: 0, Confidence: 0}
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
