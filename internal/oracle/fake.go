package oracle

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"
)

// FakeOracle is a deterministic, in-process Oracle used by tests. It
// never makes network calls: embeddings are derived from a hash of the
// input text, and classification is driven by simple keyword rules so
// test expectations stay stable across runs.
type FakeOracle struct {
	mu sync.Mutex

	// Dim is the embedding dimension to produce. Defaults to 16 when 0.
	Dim int

	// Hierarchies, keyed by exact idea text, overrides the default
	// keyword-based classification when set.
	Hierarchies map[string]Hierarchy

	// Relations, keyed by "seedText||candidateText", overrides the
	// default keyword-based relation classification when set.
	Relations map[string]PairRelation

	// ParentSelections, keyed by idea text, overrides the default
	// "first candidate" routing behavior when set.
	ParentSelections map[string]string

	// Calls counts invocations per method, for assertions about
	// caching behavior (e.g. that a relation was classified once).
	Calls map[string]int
}

// NewFakeOracle returns a FakeOracle with empty override maps.
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		Dim:              16,
		Hierarchies:      make(map[string]Hierarchy),
		Relations:        make(map[string]PairRelation),
		ParentSelections: make(map[string]string),
		Calls:            make(map[string]int),
	}
}

func (f *FakeOracle) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[method]++
}

// Embed implements Oracle by hashing text into a fixed-dimension
// pseudo-embedding. Identical text always yields identical vectors;
// distinct text yields (with overwhelming probability) distinct ones.
func (f *FakeOracle) Embed(ctx context.Context, text string) ([]float32, error) {
	f.record("Embed")
	dim := f.Dim
	if dim <= 0 {
		dim = 16
	}
	sum := sha256.Sum256([]byte(text))
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		out[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return out, nil
}

// ClassifyTopicHierarchy implements Oracle using an explicit override
// when present, otherwise a coarse keyword bucket so unrelated test
// fixtures land in different topics.
func (f *FakeOracle) ClassifyTopicHierarchy(ctx context.Context, text string) (Hierarchy, error) {
	f.record("ClassifyTopicHierarchy")
	if h, ok := f.Hierarchies[text]; ok {
		return h, nil
	}
	lower := strings.ToLower(text)
	bucket := "general"
	for _, kw := range []string{"tax", "climate", "housing", "education", "health", "transit"} {
		if strings.Contains(lower, kw) {
			bucket = kw
			break
		}
	}
	return Hierarchy{
		Level1: bucket,
		Level2: bucket + "-policy",
		Level3: bucket + "-policy-detail",
	}, nil
}

// ClassifyPairRelation implements Oracle using an explicit override
// when present, otherwise a keyword heuristic on the candidate:
// "oppose"/"against"/"should not" gives oppose, then
// "support"/"agree"/"should" gives support, anything else is neutral.
func (f *FakeOracle) ClassifyPairRelation(ctx context.Context, seedText, candidateText string, topicPath []string) (PairRelation, error) {
	f.record("ClassifyPairRelation")
	key := seedText + "||" + candidateText
	if r, ok := f.Relations[key]; ok {
		return r, nil
	}
	lower := strings.ToLower(candidateText)
	switch {
	case strings.Contains(lower, "oppose"), strings.Contains(lower, "against"), strings.Contains(lower, "should not"):
		return PairRelation{Label: "oppose", Confidence: 0.9}, nil
	case strings.Contains(lower, "support"), strings.Contains(lower, "agree"), strings.Contains(lower, "should"):
		return PairRelation{Label: "support", Confidence: 0.9}, nil
	default:
		return PairRelation{Label: "neutral", Confidence: 0.5}, nil
	}
}

// SelectParentTopic implements Oracle: it returns an explicit override
// when set, otherwise always routes to the first candidate, or "NEW"
// when there are none. This mirrors the common case in tests where a
// single obviously-matching topic already exists.
func (f *FakeOracle) SelectParentTopic(ctx context.Context, text, label string, candidates []string) (string, error) {
	f.record("SelectParentTopic")
	if sel, ok := f.ParentSelections[text]; ok {
		return sel, nil
	}
	if len(candidates) == 0 {
		return "NEW", nil
	}
	return candidates[0], nil
}
