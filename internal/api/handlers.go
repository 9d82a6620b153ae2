package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ideaengine/ideaengine/internal/apperr"
	"github.com/ideaengine/ideaengine/internal/edges"
	"github.com/ideaengine/ideaengine/internal/ideastore"
	"github.com/ideaengine/ideaengine/internal/ingest"
	"github.com/ideaengine/ideaengine/internal/retrieval"
	"github.com/ideaengine/ideaengine/internal/topicstore"
)

// CreateIdeaRequest is the body of POST /ideas.
type CreateIdeaRequest struct {
	Text         string         `json:"text" binding:"required"`
	UserID       string         `json:"user_id"`
	MetadataJSON map[string]any `json:"metadata_json"`
}

// createIdea handles POST /api/v1/ideas.
func (s *Server) createIdea(c *gin.Context) {
	var req CreateIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	orch := ingest.New(s.db, s.oracle, &s.config.Topic)
	result, err := orch.Ingest(c.Request.Context(), ingest.Input{
		Text:     req.Text,
		UserID:   req.UserID,
		Metadata: req.MetadataJSON,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	CreatedResponse(c, "idea ingested", gin.H{
		"node":     result.Idea,
		"topic":    result.Topic,
		"subtopic": result.Subtopic,
	})
}

func queryTopK(c *gin.Context, def, min, max int) int {
	v, err := strconv.Atoi(c.Query("top_k"))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (s *Server) supportive(c *gin.Context) {
	id := c.Query("id")
	topK := queryTopK(c, 10, 1, 100)

	neighbors, err := s.retrieval.Supportive(c.Request.Context(), id, topK)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessResponse(c, "supportive neighbors", gin.H{"id": id, "neighbors": neighbors})
}

func (s *Server) opposing(c *gin.Context) {
	id := c.Query("id")
	topK := queryTopK(c, 10, 1, 100)

	var alphaOverride *float64
	if raw := c.Query("alpha"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			alphaOverride = &v
		}
	}

	neighbors, err := s.retrieval.Opposing(c.Request.Context(), id, topK, alphaOverride)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessResponse(c, "opposing neighbors", gin.H{"id": id, "neighbors": neighbors})
}

func (s *Server) nearby(c *gin.Context) {
	id := c.Query("id")
	topK := queryTopK(c, 10, 1, 100)

	neighbors, err := s.retrieval.Nearby(c.Request.Context(), id, topK)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessResponse(c, "nearby neighbors", gin.H{"id": id, "neighbors": neighbors})
}

func (s *Server) relations(c *gin.Context) {
	id := c.Query("id")
	topK := queryTopK(c, 5, 1, 10)
	candidatePool := queryIntBetween(c, "candidate_pool", 24, 4, 120)

	buckets, err := s.retrieval.RelationBuckets(c.Request.Context(), id, topK, candidatePool)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessResponse(c, "relation buckets", gin.H{
		"id":         id,
		"supportive": orEmpty(buckets.Supportive),
		"opposing":   orEmpty(buckets.Opposing),
		"neutral":    orEmpty(buckets.Neutral),
	})
}

func orEmpty(views []retrieval.NeighborView) []retrieval.NeighborView {
	if views == nil {
		return []retrieval.NeighborView{}
	}
	return views
}

func queryIntBetween(c *gin.Context, key string, def, min, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (s *Server) listTopics(c *gin.Context) {
	topics, err := topicstore.New(s.db.DB()).List(c.Request.Context())
	if err != nil {
		RespondError(c, apperr.Internal("failed to list topics", err))
		return
	}
	SuccessResponse(c, "topics", topics)
}

// mapResponse is the /map payload: the full topic tree, its
// hierarchy edges, the most recent ideas, and the strongest
// similarity edges between them.
type mapResponse struct {
	Topics     []*topicstore.Topic `json:"topics"`
	TopicEdges []*edges.Edge       `json:"topic_edges"`
	Ideas      []*ideastore.Idea   `json:"ideas"`
	IdeaEdges  []*edges.Edge       `json:"idea_edges"`
}

func (s *Server) topicMap(c *gin.Context) {
	maxIdeaEdges := queryIntBetween(c, "max_idea_edges", 1000, 100, 10000)
	ctx := c.Request.Context()

	topics, err := topicstore.New(s.db.DB()).List(ctx)
	if err != nil {
		RespondError(c, apperr.Internal("failed to list topics", err))
		return
	}
	edgeStore := edges.New(s.db.DB())
	topicEdges, err := edgeStore.ListHierarchy(ctx)
	if err != nil {
		RespondError(c, apperr.Internal("failed to list topic hierarchy edges", err))
		return
	}
	recentIdeas, err := ideastore.New(s.db.DB()).ListRecent(ctx, 1000)
	if err != nil {
		RespondError(c, apperr.Internal("failed to list recent ideas", err))
		return
	}
	ideaEdges, err := edgeStore.TopWeighted(ctx, edges.TypeIdeaSimilarity, maxIdeaEdges)
	if err != nil {
		RespondError(c, apperr.Internal("failed to list top weighted idea edges", err))
		return
	}

	SuccessResponse(c, "topic map", mapResponse{
		Topics:     topics,
		TopicEdges: topicEdges,
		Ideas:      recentIdeas,
		IdeaEdges:  ideaEdges,
	})
}

func (s *Server) recluster(c *gin.Context) {
	result, err := s.rebalance.Run(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessResponse(c, "recluster complete", gin.H{"topics_refreshed": result.TopicsRefreshed})
}
