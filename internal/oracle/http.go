package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ideaengine/ideaengine/internal/logging"
)

var log = logging.GetLogger("oracle")

// HTTPOracle talks to an OpenAI-compatible chat-completions and
// embeddings API: JSON-mode chat for classification, /embeddings for
// vectors. Timeouts follow the spec's §5 table (embedding <=60s,
// classification <=90s).
type HTTPOracle struct {
	baseURL       string
	apiKey        string
	chatModel     string
	embedModel    string
	embeddingDim  int
	embedClient   *http.Client
	chatClient    *http.Client
}

// NewHTTPOracle creates an Oracle backed by an OpenAI-compatible API.
func NewHTTPOracle(baseURL, apiKey, chatModel, embedModel string, embeddingDim int) *HTTPOracle {
	return &HTTPOracle{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		chatModel:    chatModel,
		embedModel:   embedModel,
		embeddingDim: embeddingDim,
		embedClient:  &http.Client{Timeout: 60 * time.Second},
		chatClient:   &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *HTTPOracle) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  "application/json",
	}
}

func (o *HTTPOracle) doJSON(ctx context.Context, client *http.Client, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range o.headers() {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("oracle request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode oracle response: %w", err)
	}
	return nil
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Oracle.
func (o *HTTPOracle) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	req := embeddingRequest{Model: o.embedModel, Input: text, Dimensions: o.embeddingDim}
	if err := o.doJSON(ctx, o.embedClient, http.MethodPost, "/embeddings", req, &resp); err != nil {
		log.Error("embed failed", "error", err)
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("oracle returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat responseFormat  `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *HTTPOracle) chatJSON(ctx context.Context, systemPrompt, userPrompt string) (map[string]any, error) {
	req := chatRequest{
		Model:       o.chatModel,
		Temperature: 0.2,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	var resp chatResponse
	if err := o.doJSON(ctx, o.chatClient, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("oracle returned invalid JSON: %w", err)
	}
	return out, nil
}

const hierarchySystemPrompt = `You are a strict topic classifier. Reuse stable level2/level3 names when possible.
Do NOT include sentiment or stance in topic names: the same topic must be chosen for ideas that
support or oppose the same issue. Return JSON only with keys level1, level2, level3.`

// ClassifyTopicHierarchy implements Oracle.
func (o *HTTPOracle) ClassifyTopicHierarchy(ctx context.Context, text string) (Hierarchy, error) {
	userPrompt := fmt.Sprintf("Idea: %s\n\nReturn JSON only with level1, level2, level3 topic names.", text)
	result, err := o.chatJSON(ctx, hierarchySystemPrompt, userPrompt)
	if err != nil {
		return Hierarchy{}, err
	}
	level1 := truncate(stringField(result, "level1", ""), 80)
	if level1 == "" {
		level1 = "general"
	}
	level2 := truncate(stringField(result, "level2", level1), 80)
	if level2 == "" {
		level2 = level1
	}
	level3 := truncate(stringField(result, "level3", level2), 120)
	if level3 == "" {
		level3 = level2
	}
	return Hierarchy{Level1: level1, Level2: level2, Level3: level3}, nil
}

const relationSystemPrompt = `You classify the relation between two short ideas.
Return JSON only with keys relation_label and confidence.
relation_label must be one of: support, oppose, neutral.`

// ClassifyPairRelation implements Oracle.
func (o *HTTPOracle) ClassifyPairRelation(ctx context.Context, seedText, candidateText string, topicPath []string) (PairRelation, error) {
	userPrompt := fmt.Sprintf("Seed idea:\n%s\n\nCandidate idea:\n%s\n\n", seedText, candidateText)
	if len(topicPath) > 0 {
		userPrompt += fmt.Sprintf("Topic context: %s\n\n", strings.Join(topicPath, " / "))
	}
	userPrompt += "Classify whether the candidate supports, opposes, or is neutral to the seed idea."

	result, err := o.chatJSON(ctx, relationSystemPrompt, userPrompt)
	if err != nil {
		return PairRelation{}, err
	}
	label := strings.ToLower(strings.TrimSpace(stringField(result, "relation_label", "neutral")))
	if label != "support" && label != "oppose" && label != "neutral" {
		label = "neutral"
	}
	confidence := clamp01(floatField(result, "confidence", 0))
	return PairRelation{Label: label, Confidence: confidence}, nil
}

const parentSystemPrompt = `You are a strict topic router. Choose one existing topic name if it is clearly the
same underlying issue. Otherwise return NEW. Output JSON only with keys selected_topic_name and confidence.`

// SelectParentTopic implements Oracle.
func (o *HTTPOracle) SelectParentTopic(ctx context.Context, text, label string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "NEW", nil
	}
	var lines strings.Builder
	for _, c := range candidates {
		lines.WriteString("- " + c + "\n")
	}
	userPrompt := fmt.Sprintf(
		"Idea: %s\nSuggested topic_label: %s\nCandidate existing topics:\n%sReturn selected_topic_name as exact candidate name or NEW.",
		text, label, lines.String(),
	)
	result, err := o.chatJSON(ctx, parentSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	selected := strings.TrimSpace(stringField(result, "selected_topic_name", "NEW"))
	confidence := floatField(result, "confidence", 0)
	if confidence < 0.45 {
		return "NEW", nil
	}
	for _, c := range candidates {
		if c == selected {
			return selected, nil
		}
	}
	return "NEW", nil
}

func stringField(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return fallback
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
