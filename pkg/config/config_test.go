package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RestAPI.Port != 8085 {
		t.Errorf("Expected Port=8085, got %d", cfg.RestAPI.Port)
	}
	if cfg.RestAPI.Host != "localhost" {
		t.Errorf("Expected Host=localhost, got %s", cfg.RestAPI.Host)
	}
	if !cfg.RestAPI.CORS {
		t.Error("Expected CORS=true")
	}

	if cfg.Topic.EmbeddingDim != 1536 {
		t.Errorf("Expected EmbeddingDim=1536, got %d", cfg.Topic.EmbeddingDim)
	}
	if cfg.Topic.TopicSimilarityThreshold != 0.62 {
		t.Errorf("Expected TopicSimilarityThreshold=0.62, got %v", cfg.Topic.TopicSimilarityThreshold)
	}
	if cfg.Topic.SubtopicSimilarityThreshold != 0.70 {
		t.Errorf("Expected SubtopicSimilarityThreshold=0.70, got %v", cfg.Topic.SubtopicSimilarityThreshold)
	}
	if cfg.Topic.TopicNeighborTopK != 8 {
		t.Errorf("Expected TopicNeighborTopK=8, got %d", cfg.Topic.TopicNeighborTopK)
	}
	if cfg.Topic.StanceConfidenceMargin != 0.04 {
		t.Errorf("Expected StanceConfidenceMargin=0.04, got %v", cfg.Topic.StanceConfidenceMargin)
	}
	if cfg.Topic.OpposingAlpha != 0.65 {
		t.Errorf("Expected OpposingAlpha=0.65, got %v", cfg.Topic.OpposingAlpha)
	}
	if cfg.Topic.FallbackSimilarityFloor != 0.33 {
		t.Errorf("Expected FallbackSimilarityFloor=0.33, got %v", cfg.Topic.FallbackSimilarityFloor)
	}
	if cfg.Topic.ReclusterMinPoints != 24 {
		t.Errorf("Expected ReclusterMinPoints=24, got %d", cfg.Topic.ReclusterMinPoints)
	}
	if cfg.Topic.ReclusterEntropyThreshold != 1.05 {
		t.Errorf("Expected ReclusterEntropyThreshold=1.05, got %v", cfg.Topic.ReclusterEntropyThreshold)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}

	cfg.RestAPI.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid port")
	}

	cfg = DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid logging level")
	}

	cfg = DefaultConfig()
	cfg.Topic.EmbeddingDim = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive embedding dim")
	}
}
