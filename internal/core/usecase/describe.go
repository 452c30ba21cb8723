package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

const describeTimeout = 90 * time.Second

// DescribePagesUseCase turns page images into searchable text chunks by
// asking a vision model to describe what the drawing shows. Gated by a
// feature flag in the config; drawings with no extractable text get
// their retrieval corpus this way.
type DescribePagesUseCase struct {
	repo     ports.DocumentRepository
	chunks   ports.ChunkRepository
	embedder ports.Embedder
	gateway  ports.ModelGateway
	chunker  ports.Chunker
	logger   *slog.Logger
}

func NewDescribePagesUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
	gateway ports.ModelGateway,
	chunker ports.Chunker,
	logger *slog.Logger,
) *DescribePagesUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DescribePagesUseCase{
		repo:     repo,
		chunks:   chunks,
		embedder: embedder,
		gateway:  gateway,
		chunker:  chunker,
		logger:   logger,
	}
}

// PageImage pairs a page number with its rendered image.
type PageImage struct {
	PageNumber int
	Image      domain.EncodedImage
}

// Describe generates a text description per page image and appends the
// resulting chunks to the document's index. Pages that fail are
// skipped with a warning; the call fails only when every page fails.
func (uc *DescribePagesUseCase) Describe(ctx context.Context, documentID string, pages []PageImage) (int, error) {
	if len(pages) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "describe pages", errors.New("no page images"))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("fetch plan: %w", err)
	}

	var newChunks []domain.TextChunk
	var failures []string

	for _, page := range pages {
		description, err := uc.describePage(ctx, page.Image)
		if err != nil {
			uc.logger.Warn("page_describe_failed", "plan_id", documentID, "page", page.PageNumber, "error", err)
			failures = append(failures, fmt.Sprintf("page %d: %v", page.PageNumber, err))
			continue
		}
		newChunks = append(newChunks, uc.buildChunks(doc.ID, page.PageNumber, description)...)
	}

	if len(newChunks) == 0 {
		return 0, fmt.Errorf("describing all %d pages failed: %s", len(pages), strings.Join(failures, "; "))
	}

	if err := uc.embedDescriptions(ctx, newChunks); err != nil {
		return 0, err
	}
	if err := uc.chunks.InsertBatch(ctx, newChunks); err != nil {
		return 0, fmt.Errorf("insert description chunks: %w", err)
	}
	return len(newChunks), nil
}

func (uc *DescribePagesUseCase) describePage(ctx context.Context, image domain.EncodedImage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()

	task := domain.AnalysisTask{
		TaskType:     domain.TaskQuality,
		SystemPrompt: "You are a construction drawing reader. Describe plainly what the sheet shows.",
		UserPrompt: "Describe this construction plan page for a search index: sheet purpose, " +
			"visible schedules and their rows, dimensions, annotations, and legend entries. Plain text only.",
		Images: []domain.EncodedImage{image},
	}

	result, err := uc.gateway.CallFirstAvailable(callCtx, task, domain.CallOptions{Timeout: describeTimeout})
	if err != nil {
		return "", err
	}
	description := strings.TrimSpace(result.Content)
	if description == "" {
		return "", errors.New("model returned empty description")
	}
	return description, nil
}

func (uc *DescribePagesUseCase) buildChunks(documentID string, pageNumber int, description string) []domain.TextChunk {
	chunks := uc.chunker.Chunk(description, domain.ChunkContext{
		DocumentID: documentID,
		PageNumber: pageNumber,
	})
	for i := range chunks {
		chunks[i].Metadata.ContentType = domain.ContentTypeVisionDescription
	}
	return chunks
}

func (uc *DescribePagesUseCase) embedDescriptions(ctx context.Context, chunks []domain.TextChunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.SnippetText
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed descriptions: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(domain.ErrInvalidInput, "embed descriptions",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}
	for i, vec := range vectors {
		chunks[i].Embedding = vec
	}
	return nil
}
