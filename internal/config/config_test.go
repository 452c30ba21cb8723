package config

import (
	"testing"
	"time"
)

func TestLoadIncludesConsensusDefaults(t *testing.T) {
	t.Setenv("MAX_MODELS_PER_ANALYSIS", "")
	t.Setenv("CONSENSUS_ITEM_SIMILARITY", "")
	t.Setenv("CONSENSUS_ISSUE_SIMILARITY", "")
	t.Setenv("CONSENSUS_PROMOTION_FRACTION", "")
	t.Setenv("CONSENSUS_DISAGREEMENT_FACTOR", "")
	t.Setenv("VISION_DESCRIBE_ENABLED", "")

	cfg := Load()
	if cfg.MaxModelsPerAnalysis != 5 {
		t.Fatalf("expected default max models 5, got %d", cfg.MaxModelsPerAnalysis)
	}
	if cfg.ItemSimilarity != 0.7 {
		t.Fatalf("expected default item similarity 0.7, got %v", cfg.ItemSimilarity)
	}
	if cfg.IssueSimilarity != 0.75 {
		t.Fatalf("expected default issue similarity 0.75, got %v", cfg.IssueSimilarity)
	}
	if cfg.PromotionFraction != 0.3 {
		t.Fatalf("expected default promotion fraction 0.3, got %v", cfg.PromotionFraction)
	}
	if cfg.VisionDescribeEnabled {
		t.Fatalf("vision describe must default off")
	}
}

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("CHUNK_MAX_CHARS", "")
	t.Setenv("CHUNK_MIN_CHARS", "")
	t.Setenv("EXTRACTION_QUALITY_THRESHOLD", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_DIMENSION", "")
	t.Setenv("PROVIDER_HEALTH_TTL", "")

	cfg := Load()
	if cfg.ChunkMaxChars != 900 || cfg.ChunkMinChars != 120 {
		t.Fatalf("expected default chunk bounds 900/120, got %d/%d", cfg.ChunkMaxChars, cfg.ChunkMinChars)
	}
	if cfg.ExtractionQualityThreshold != 50 {
		t.Fatalf("expected default quality threshold 50, got %v", cfg.ExtractionQualityThreshold)
	}
	if cfg.EmbeddingModel != "text-embedding-3-small" || cfg.EmbeddingDimension != 1536 {
		t.Fatalf("expected default embedding model/dimension, got %q/%d", cfg.EmbeddingModel, cfg.EmbeddingDimension)
	}
	if cfg.ProviderHealthTTL != 30*time.Minute {
		t.Fatalf("expected default health ttl 30m, got %v", cfg.ProviderHealthTTL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("MAX_MODELS_PER_ANALYSIS", "3")
	t.Setenv("CONSENSUS_ITEM_SIMILARITY", "0.8")
	t.Setenv("MODEL_CALL_TIMEOUT", "90s")
	t.Setenv("VISION_DESCRIBE_ENABLED", "true")
	t.Setenv("EMBEDDING_DIMENSION", "3072")

	cfg := Load()
	if cfg.MaxModelsPerAnalysis != 3 {
		t.Fatalf("expected max models override, got %d", cfg.MaxModelsPerAnalysis)
	}
	if cfg.ItemSimilarity != 0.8 {
		t.Fatalf("expected item similarity override, got %v", cfg.ItemSimilarity)
	}
	if cfg.ModelCallTimeout != 90*time.Second {
		t.Fatalf("expected call timeout override, got %v", cfg.ModelCallTimeout)
	}
	if !cfg.VisionDescribeEnabled {
		t.Fatalf("expected vision describe enabled")
	}
	if cfg.EmbeddingDimension != 3072 {
		t.Fatalf("expected dimension override, got %d", cfg.EmbeddingDimension)
	}
}

func TestLoadFallsBackOnUnparseableValues(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSION", "lots")
	t.Setenv("CONSENSUS_ITEM_SIMILARITY", "very")
	t.Setenv("VISION_DESCRIBE_ENABLED", "sure")

	cfg := Load()
	if cfg.EmbeddingDimension != 1536 {
		t.Fatalf("unparseable int must fall back, got %d", cfg.EmbeddingDimension)
	}
	if cfg.ItemSimilarity != 0.7 {
		t.Fatalf("unparseable float must fall back, got %v", cfg.ItemSimilarity)
	}
	if cfg.VisionDescribeEnabled {
		t.Fatalf("unparseable bool must fall back to false")
	}
}
