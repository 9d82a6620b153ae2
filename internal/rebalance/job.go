// Package rebalance implements the periodic job that re-partitions
// high-entropy level-1 topic subtrees via k-means.
package rebalance

import (
	"context"
	"fmt"
	"math"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/ideastore"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/topicstore"
	"github.com/ideaengine/ideaengine/internal/vectorops"
	"github.com/ideaengine/ideaengine/pkg/config"
)

var log = logging.GetLogger("rebalance")

// Job runs one recluster pass over every level-1 topic.
type Job struct {
	db  *database.Database
	cfg *config.TopicConfig
}

// New returns a Job bound to db, configured by cfg.
func New(db *database.Database, cfg *config.TopicConfig) *Job {
	return &Job{db: db, cfg: cfg}
}

// Result reports how many level-1 subtrees were actually refreshed.
type Result struct {
	TopicsRefreshed int
}

// Run evaluates every level-1 topic and reclusters those whose
// subtopic-assignment entropy clears the configured threshold. Each
// refreshed topic is processed in its own transaction so a failure on
// one subtree never rolls back another.
func (j *Job) Run(ctx context.Context) (Result, error) {
	level1Topics, err := topicstore.New(j.db.DB()).ListByLevel(ctx, 1)
	if err != nil {
		return Result{}, apperr.Internal("failed to list level-1 topics", err)
	}

	var refreshed int
	for _, parent := range level1Topics {
		ok, err := j.reclusterTopic(ctx, parent)
		if err != nil {
			return Result{}, err
		}
		if ok {
			refreshed++
		}
	}
	return Result{TopicsRefreshed: refreshed}, nil
}

func (j *Job) reclusterTopic(ctx context.Context, parent *topicstore.Topic) (bool, error) {
	members, err := ideastore.New(j.db.DB()).ListByTopic(ctx, parent.ID)
	if err != nil {
		return false, apperr.Internal("failed to list topic members", err)
	}
	n := len(members)
	if n < j.cfg.ReclusterMinPoints {
		return false, nil
	}

	h := subtopicEntropy(members)
	if h < j.cfg.ReclusterEntropyThreshold {
		return false, nil
	}

	k := clampInt(int(math.Round(math.Sqrt(float64(n)/6))), 2, 8)
	points := make([][]float32, n)
	for i, m := range members {
		points[i] = m.Embedding
	}
	clusters := vectorops.KMeans(points, k)

	tx, err := j.db.BeginTx()
	if err != nil {
		return false, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	topics := topicstore.New(tx)
	ideas := ideastore.New(tx)

	if err := topics.ZeroChildrenNPoints(ctx, parent.ID); err != nil {
		return false, err
	}

	for i, cluster := range clusters {
		child, err := topics.CreateChild(ctx, 2, fmt.Sprintf("%s / cluster %d", parent.Name, i+1), cluster.Centroid, parent.ID, 0)
		if err != nil {
			return false, err
		}

		for _, idx := range cluster.Members {
			member := members[idx]
			if err := topics.UpdateTopicCentroid(ctx, child, member.Embedding); err != nil {
				return false, err
			}
			if member.StanceLabel == "pro" || member.StanceLabel == "con" {
				if err := topics.UpdateStanceCentroid(ctx, child, member.Embedding, member.StanceLabel); err != nil {
					return false, err
				}
			}

			metadata := member.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata["cluster_id"] = child.ID
			if err := ideas.ReassignSubtopic(ctx, member.ID, child.ID, metadata); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apperr.Internal("failed to commit recluster", err)
	}

	log.Info("recluster refreshed level-1 subtree", "topic_id", parent.ID, "member_count", n, "entropy", h, "clusters", k)
	return true, nil
}

// subtopicEntropy computes the Shannon entropy of the discrete
// distribution of members across their current subtopic_id, the
// signal the job uses to detect a poorly-differentiated subtree.
func subtopicEntropy(members []*ideastore.Idea) float64 {
	counts := map[string]int{}
	for _, m := range members {
		key := "∅"
		if m.SubtopicID != nil {
			key = *m.SubtopicID
		}
		counts[key]++
	}
	n := float64(len(members))
	if n == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
