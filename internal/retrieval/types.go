// Package retrieval implements the hierarchical supportive/opposing/
// nearby neighbor queries and the LLM-verified, cached relation-bucket
// retrieval that sits on top of the topic and idea stores.
package retrieval

// NeighborView is a retrieval result with the raw embedding stripped,
// as the spec requires for all neighbor-query output.
type NeighborView struct {
	ID               string
	Text             string
	Similarity       float64
	StanceLabel      string
	TopicID          *string
	SubtopicID       *string
	RelationLabel    string  // set only by RelationBuckets
	RelationConf     float64 // set only by RelationBuckets
}

// Buckets is the response shape for RelationBuckets: up to top_k
// candidates in each of the three relation classes.
type Buckets struct {
	Supportive []NeighborView
	Opposing   []NeighborView
	Neutral    []NeighborView
}

func opposite(stance string) string {
	switch stance {
	case "pro":
		return "con"
	case "con":
		return "pro"
	default:
		return ""
	}
}
