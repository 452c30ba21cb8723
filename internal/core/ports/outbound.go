package ports

import (
	"context"
	"io"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// DocumentRepository persists and reads plan document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestStats(ctx context.Context, id string, stats domain.IngestStats) error
}

// ChunkRepository owns the embedded chunk rows of a document. Writes
// follow delete-then-insert: callers serialize reindexing per document.
type ChunkRepository interface {
	DeleteByDocument(ctx context.Context, documentID string) error
	InsertBatch(ctx context.Context, chunks []domain.TextChunk) error
	// CountByDocument reports total rows and rows carrying an embedding.
	CountByDocument(ctx context.Context, documentID string) (total int, embedded int, err error)
	SearchSimilar(ctx context.Context, documentID string, queryVector []float32, limit int) ([]domain.TextChunk, error)
	GetByPages(ctx context.Context, documentID string, pageNumbers []int, maxRows int) ([]domain.TextChunk, error)
}

// ObjectStorage stores raw plan PDFs.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes plan ingestion events.
type MessageQueue interface {
	PublishPlanUploaded(ctx context.Context, documentID string) error
	SubscribePlanUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor turns a PDF byte buffer into per-page plain text,
// escalating through extraction tiers until a quality bar is met.
type PageExtractor interface {
	Extract(ctx context.Context, pdfBytes []byte) (domain.ExtractionResult, error)
}

// Chunker splits one page of text into bounded retrieval chunks.
type Chunker interface {
	Chunk(text string, cc domain.ChunkContext) []domain.TextChunk
}

// Embedder builds fixed-dimension vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ProviderHealth tracks time-boxed degradation marks per model provider.
type ProviderHealth interface {
	IsDegraded(provider string) bool
	MarkDegraded(provider string)
}

// ModelGateway normalizes calls across heterogeneous model providers.
type ModelGateway interface {
	// CallModel issues one probe-guarded call against a specific model.
	CallModel(ctx context.Context, provider, model string, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error)
	// CallFirstAvailable walks the provider priority order, skipping
	// degraded providers, and returns the first success.
	CallFirstAvailable(ctx context.Context, task domain.AnalysisTask, opts domain.CallOptions) (domain.ModelResult, error)
}
