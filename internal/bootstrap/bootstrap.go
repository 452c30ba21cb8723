package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/constructiq/plan-analysis/internal/config"
	"github.com/constructiq/plan-analysis/internal/core/ports"
	"github.com/constructiq/plan-analysis/internal/core/usecase"
	"github.com/constructiq/plan-analysis/internal/infrastructure/chunking"
	"github.com/constructiq/plan-analysis/internal/infrastructure/extraction"
	"github.com/constructiq/plan-analysis/internal/infrastructure/providers"
	"github.com/constructiq/plan-analysis/internal/infrastructure/queue/nats"
	"github.com/constructiq/plan-analysis/internal/infrastructure/repository/postgres"
	"github.com/constructiq/plan-analysis/internal/infrastructure/resilience"
	"github.com/constructiq/plan-analysis/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	Repo       ports.DocumentRepository
	IngestUC   ports.PlanIngestor
	ProcessUC  ports.PlanProcessor
	RetrieveUC ports.PlanSearcher
	AnalyzeUC  ports.PlanAnalyzer
	DescribeUC *usecase.DescribePagesUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure plans schema: %w", err)
	}
	chunkRepo := postgres.NewChunkRepository(db, cfg.EmbeddingDimension)
	if err := chunkRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure chunks schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var ocr extraction.OCRRunner
	if cfg.OCRBaseURL != "" && cfg.OCRAPIKey != "" {
		ocr = extraction.NewOCRClient(cfg.OCRBaseURL, cfg.OCRAPIKey, executor)
	}
	extractor := extraction.NewManager(extraction.Config{
		QualityThreshold: cfg.ExtractionQualityThreshold,
		TextTimeout:      cfg.ExtractionTextTimeout,
		LayoutTimeout:    cfg.ExtractionLayoutTimeout,
	}, ocr, logger)

	chunker := chunking.New(cfg.ChunkMaxChars, cfg.ChunkMinChars)
	embedder := providers.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingRPS)

	enabled := map[string]bool{
		"openai":    cfg.OpenAIEnabled && cfg.OpenAIAPIKey != "",
		"anthropic": cfg.AnthropicEnabled && cfg.AnthropicAPIKey != "",
		"gemini":    cfg.GeminiEnabled && cfg.GeminiAPIKey != "",
	}
	available := func(provider string) bool { return enabled[provider] }

	var order []providers.Provider
	if enabled["anthropic"] {
		order = append(order, providers.NewAnthropicProvider(cfg.AnthropicAPIKey))
	}
	if enabled["openai"] {
		order = append(order, providers.NewOpenAIProvider(cfg.OpenAIAPIKey))
	}
	if enabled["gemini"] {
		order = append(order, providers.NewGeminiProvider(cfg.GeminiAPIKey))
	}

	health := providers.NewHealthTracker(cfg.ProviderHealthTTL)
	gateway := providers.NewRouter(order, map[string]string{
		"anthropic": "claude-sonnet-4-5",
		"openai":    "gpt-4o",
		"gemini":    "gemini-2.0-flash",
	}, health, logger)

	roster, err := usecase.LoadRoster(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load model roster: %w", err)
	}
	consensusUC := usecase.NewConsensusUseCase(gateway, roster, available, usecase.ConsensusConfig{
		MaxModels:          cfg.MaxModelsPerAnalysis,
		CallTimeout:        cfg.ModelCallTimeout,
		ItemSimilarity:     cfg.ItemSimilarity,
		IssueSimilarity:    cfg.IssueSimilarity,
		PromotionFraction:  cfg.PromotionFraction,
		DisagreementFactor: cfg.DisagreementFactor,
	}, logger)

	ingestUC := usecase.NewIngestPlanUseCase(repo, storage, queue)
	processUC := usecase.NewProcessPlanUseCase(repo, chunkRepo, storage, extractor, chunker, embedder, cfg.EmbeddingDimension, logger)
	retrieveUC := usecase.NewRetrieveUseCase(repo, chunkRepo, embedder)
	analyzeUC := usecase.NewAnalyzePlanUseCase(repo, chunkRepo, embedder, consensusUC)

	var describeUC *usecase.DescribePagesUseCase
	if cfg.VisionDescribeEnabled {
		describeUC = usecase.NewDescribePagesUseCase(repo, chunkRepo, embedder, gateway, chunker, logger)
	}

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		RetrieveUC: retrieveUC,
		AnalyzeUC:  analyzeUC,
		DescribeUC: describeUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
