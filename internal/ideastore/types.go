// Package ideastore implements CRUD and scoped nearest-neighbor search
// over ideas: the unit of retrieval the rest of the system ranks,
// filters, and links.
package ideastore

import "time"

// Idea is a single ingested sentence with its topic anchors and
// stance assignment.
type Idea struct {
	ID               string
	Text             string
	DedupeKey        string
	Embedding        []float32
	TopicID          *string // level-1 anchor
	MidTopicID       *string // level-2 anchor (also mirrored into Metadata["mid_topic_id"])
	SubtopicID       *string // level-3 anchor (leaf)
	StanceLabel      string
	StanceConfidence float64
	Metadata         map[string]any
	CreatedAt        time.Time
}

// Neighbor is a candidate row returned from a scoped nearest-neighbor
// query, carrying its embedding so callers can re-rank or re-score.
type Neighbor struct {
	Idea       *Idea
	Similarity float64
}

// Filters narrows a WithFilters scan: every set field must match, and
// TopicIDs matches any one of its ids. A nil/empty field is
// unconstrained.
type Filters struct {
	TopicIDs    []string
	MidTopicID  *string
	SubtopicID  *string
	StanceLabel *string
}
