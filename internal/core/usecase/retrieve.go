package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/constructiq/plan-analysis/internal/core/domain"
	"github.com/constructiq/plan-analysis/internal/core/ports"
)

const (
	defaultSearchLimit = 6
	maxSearchLimit     = 20
	maxPageRows        = 50
)

type RetrieveUseCase struct {
	repo     ports.DocumentRepository
	chunks   ports.ChunkRepository
	embedder ports.Embedder
}

func NewRetrieveUseCase(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		repo:     repo,
		chunks:   chunks,
		embedder: embedder,
	}
}

func (uc *RetrieveUseCase) Search(ctx context.Context, documentID, query string, limit int) ([]domain.TextChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search plan", errors.New("empty query"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("fetch plan: %w", err)
	}

	// Plans without embedded chunks cannot answer a similarity query.
	// Skip the embedding round trip entirely.
	_, embedded, err := uc.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if embedded == 0 {
		return []domain.TextChunk{}, nil
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := uc.chunks.SearchSimilar(ctx, documentID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return results, nil
}

func (uc *RetrieveUseCase) Pages(ctx context.Context, documentID string, pageNumbers []int) ([]domain.TextChunk, error) {
	if len(pageNumbers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch plan pages", errors.New("no page numbers"))
	}

	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("fetch plan: %w", err)
	}

	pages := dedupePages(pageNumbers)
	results, err := uc.chunks.GetByPages(ctx, documentID, pages, maxPageRows)
	if err != nil {
		return nil, fmt.Errorf("fetch page chunks: %w", err)
	}
	return results, nil
}

func dedupePages(pages []int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p <= 0 {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
