package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

const (
	downloadTimeout = 5 * time.Minute
	embedBatchSize  = 20
)

type ProcessPlanUseCase struct {
	repo      ports.DocumentRepository
	chunks    ports.ChunkRepository
	storage   ports.ObjectStorage
	extractor ports.PageExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	dimension int
	logger    *slog.Logger
}

func NewProcessPlanUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	storage ports.ObjectStorage,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	dimension int,
	logger *slog.Logger,
) *ProcessPlanUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessPlanUseCase{
		repo:      repo,
		chunks:    chunks,
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		dimension: dimension,
		logger:    logger,
	}
}

func (uc *ProcessPlanUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	stats, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveIngestStats(ctx, documentID, stats); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save ingest stats: %w", err)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	uc.logger.Info("plan_processed",
		"plan_id", documentID,
		"method", stats.ExtractionMethod,
		"pages", stats.PageCount,
		"chunks", stats.ChunkCount,
		"warnings", len(stats.Warnings),
	)
	return nil
}

func (uc *ProcessPlanUseCase) processPipeline(ctx context.Context, documentID string) (domain.IngestStats, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("fetch plan by id: %w", err)
	}

	pdfBytes, err := uc.download(ctx, doc)
	if err != nil {
		return domain.IngestStats{}, err
	}

	extraction, err := uc.extractor.Extract(ctx, pdfBytes)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("extract plan text: %w", err)
	}

	chunks := uc.chunkPages(doc.ID, extraction)
	warnings := append([]string{}, extraction.Warnings...)

	stats := domain.IngestStats{
		ExtractionMethod: string(extraction.Method),
		PageCount:        len(extraction.Pages),
		ChunkCount:       len(chunks),
		Warnings:         warnings,
	}

	// A plan with no usable text is still ready; retrieval just has
	// nothing to serve and the warnings say why.
	if len(chunks) == 0 {
		stats.Warnings = append(stats.Warnings, "no text chunks produced; plan may be fully graphical")
		if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
			return domain.IngestStats{}, fmt.Errorf("clear previous chunks: %w", err)
		}
		return stats, nil
	}

	embedWarnings, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return domain.IngestStats{}, err
	}
	stats.Warnings = append(stats.Warnings, embedWarnings...)

	if err := uc.reindex(ctx, doc.ID, chunks); err != nil {
		return domain.IngestStats{}, err
	}

	verifyWarnings, err := uc.verifyIndex(ctx, doc.ID, len(chunks))
	if err != nil {
		return domain.IngestStats{}, err
	}
	stats.Warnings = append(stats.Warnings, verifyWarnings...)

	return stats, nil
}

func (uc *ProcessPlanUseCase) download(ctx context.Context, doc *domain.Document) ([]byte, error) {
	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	rc, err := uc.storage.Open(dlCtx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored plan: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored plan: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read stored plan", errors.New("empty file"))
	}
	return data, nil
}

func (uc *ProcessPlanUseCase) chunkPages(documentID string, extraction domain.ExtractionResult) []domain.TextChunk {
	var all []domain.TextChunk
	for i, page := range extraction.Pages {
		cc := domain.ChunkContext{
			DocumentID: documentID,
			PageNumber: page.PageNumber,
			PageIndex:  i,
			TotalPages: len(extraction.Pages),
			Sheet:      page.Sheet,
		}
		all = append(all, uc.chunker.Chunk(page.Text, cc)...)
	}
	return all
}

// embedChunks fills in embeddings batch by batch. A failed batch leaves
// its chunks without vectors and adds a warning; a wrong-width vector
// aborts the run because the index schema cannot store it.
func (uc *ProcessPlanUseCase) embedChunks(ctx context.Context, chunks []domain.TextChunk) ([]string, error) {
	var warnings []string

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.SnippetText
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("embed batch: %w", err)
			}
			uc.logger.Warn("embed_batch_failed", "batch_start", start, "batch_size", len(batch), "error", err)
			warnings = append(warnings, fmt.Sprintf("embedding failed for chunks %d-%d", start, end-1))
			continue
		}
		if len(vectors) != len(batch) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "embed batch",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)))
		}

		for i, vec := range vectors {
			if len(vec) != uc.dimension {
				return nil, domain.WrapError(domain.ErrEmbeddingDimension, "embed batch",
					fmt.Errorf("got %d dimensions, want %d", len(vec), uc.dimension))
			}
			chunks[start+i].Embedding = vec
		}
	}
	return warnings, nil
}

func (uc *ProcessPlanUseCase) reindex(ctx context.Context, documentID string, chunks []domain.TextChunk) error {
	if err := uc.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := uc.chunks.InsertBatch(ctx, chunks); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (uc *ProcessPlanUseCase) verifyIndex(ctx context.Context, documentID string, expected int) ([]string, error) {
	total, embedded, err := uc.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("verify chunk index: %w", err)
	}
	if total != expected {
		return nil, domain.WrapError(domain.ErrInvalidInput, "verify chunk index",
			fmt.Errorf("stored %d of %d chunks", total, expected))
	}
	if embedded == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "verify chunk index",
			errors.New("no chunk received an embedding"))
	}
	if embedded < total {
		return []string{fmt.Sprintf("%d of %d chunks indexed without embedding", total-embedded, total)}, nil
	}
	return nil, nil
}

func (uc *ProcessPlanUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessPlanUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
