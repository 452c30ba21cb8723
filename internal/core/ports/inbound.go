package ports

import (
	"context"
	"io"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// PlanIngestor is the inbound contract for plan upload orchestration.
type PlanIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// PlanProcessor runs the extraction/chunking/indexing pipeline for one
// uploaded plan.
type PlanProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// PlanAnalyzer runs a multi-model consensus analysis over a plan.
type PlanAnalyzer interface {
	Analyze(ctx context.Context, documentID string, taskType domain.TaskType, images []domain.EncodedImage) (*domain.ConsensusResult, error)
}

// PlanSearcher retrieves indexed chunks, ranked or by page.
type PlanSearcher interface {
	Search(ctx context.Context, documentID, query string, limit int) ([]domain.TextChunk, error)
	Pages(ctx context.Context, documentID string, pageNumbers []int) ([]domain.TextChunk, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
