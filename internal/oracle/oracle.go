// Package oracle provides the embedding and LLM classifier boundary
// the topic/stance layer treats as an opaque external collaborator.
package oracle

import "context"

// Hierarchy is the three-level topic classification returned for a
// piece of idea text.
type Hierarchy struct {
	Level1 string
	Level2 string
	Level3 string
}

// PairRelation is the result of classifying the relation between a
// seed idea and a candidate idea.
type PairRelation struct {
	Label      string // support, oppose, neutral
	Confidence float64
}

// Oracle is the capability boundary for embedding and LLM-backed
// classification. Production code talks to it over HTTP; tests
// satisfy it with an in-process fake.
type Oracle interface {
	// Embed produces a fixed-dimension embedding for normalized,
	// unprefixed text. Failures are fatal to the caller's operation.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ClassifyTopicHierarchy returns trimmed level1/level2/level3
	// topic names for the given idea text. Topic names are
	// stance-free by contract.
	ClassifyTopicHierarchy(ctx context.Context, text string) (Hierarchy, error)

	// ClassifyPairRelation judges whether candidateText supports,
	// opposes, or is neutral to seedText, given topic path context.
	ClassifyPairRelation(ctx context.Context, seedText, candidateText string, topicPath []string) (PairRelation, error)

	// SelectParentTopic optionally routes text to one of the
	// candidate topic names, or "NEW" when none fits confidently.
	SelectParentTopic(ctx context.Context, text, label string, candidates []string) (string, error)
}
