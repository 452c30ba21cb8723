package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

func newChunkMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock) {
	return newChunkMockDim(t, DefaultEmbeddingDim)
}

func newChunkMockDim(t *testing.T, dimension int) (*ChunkRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChunkRepository(db, dimension), mock
}

func testEmbedding(first float32) []float32 {
	v := make([]float32, DefaultEmbeddingDim)
	v[0] = first
	return v
}

func TestVectorLiteral(t *testing.T) {
	cases := []struct {
		in   []float32
		want string
	}{
		{[]float32{}, "[]"},
		{[]float32{0.5}, "[0.5]"},
		{[]float32{1, -0.25, 0}, "[1,-0.25,0]"},
	}
	for _, tc := range cases {
		if got := vectorLiteral(tc.in); got != tc.want {
			t.Errorf("vectorLiteral(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChunkInsertBatch(t *testing.T) {
	repo, mock := newChunkMock(t)

	page := 2
	chunks := []domain.TextChunk{
		{
			ID:          "c1",
			DocumentID:  "plan-1",
			PageNumber:  &page,
			SnippetText: "receptacle schedule",
			Metadata:    domain.ChunkMetadata{ContentType: domain.ContentTypeExtractedText, ChunkIndex: 0},
			Embedding:   testEmbedding(0.5),
		},
		{
			ID:          "c2",
			DocumentID:  "plan-1",
			PageNumber:  &page,
			SnippetText: "general notes",
			Metadata:    domain.ChunkMetadata{ContentType: domain.ContentTypeExtractedText, ChunkIndex: 1},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plan_chunks")).
		WithArgs(
			"c1", "plan-1", &page, "receptacle schedule", sqlmock.AnyArg(), vectorLiteral(chunks[0].Embedding),
			"c2", "plan-1", &page, "general notes", sqlmock.AnyArg(), nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkInsertBatchRejectsWrongDimension(t *testing.T) {
	repo, _ := newChunkMock(t)

	err := repo.InsertBatch(context.Background(), []domain.TextChunk{
		{ID: "c1", DocumentID: "plan-1", SnippetText: "x", Embedding: []float32{0.1, 0.2}},
	})
	if !errors.Is(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("error = %v, want ErrEmbeddingDimension", err)
	}
}

func TestChunkRepositoryConfiguredDimension(t *testing.T) {
	repo, mock := newChunkMockDim(t, 3072)

	embedding := make([]float32, 3072)
	embedding[0] = 0.5
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plan_chunks")).
		WithArgs("c1", "plan-1", nil, "large model snippet", sqlmock.AnyArg(), vectorLiteral(embedding)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertBatch(context.Background(), []domain.TextChunk{
		{ID: "c1", DocumentID: "plan-1", SnippetText: "large model snippet", Embedding: embedding},
	})
	if err != nil {
		t.Fatalf("InsertBatch() with configured dimension error = %v", err)
	}

	// The default width is now the wrong one.
	if err := repo.InsertBatch(context.Background(), []domain.TextChunk{
		{ID: "c2", DocumentID: "plan-1", SnippetText: "x", Embedding: testEmbedding(0.1)},
	}); !errors.Is(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("error = %v, want ErrEmbeddingDimension", err)
	}

	if _, err := repo.SearchSimilar(context.Background(), "plan-1", testEmbedding(0.1), 5); !errors.Is(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("SearchSimilar error = %v, want ErrEmbeddingDimension", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChunkRepositoryDefaultsDimension(t *testing.T) {
	repo, _ := newChunkMockDim(t, 0)
	if repo.dim != DefaultEmbeddingDim {
		t.Fatalf("dim = %d, want %d", repo.dim, DefaultEmbeddingDim)
	}
}

func TestChunkInsertBatchEmptyIsNoop(t *testing.T) {
	repo, mock := newChunkMock(t)

	if err := repo.InsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("InsertBatch(nil) error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statements expected: %v", err)
	}
}

func TestChunkCountByDocument(t *testing.T) {
	repo, mock := newChunkMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*), count(embedding)")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(10, 7))

	total, embedded, err := repo.CountByDocument(context.Background(), "plan-1")
	if err != nil {
		t.Fatalf("CountByDocument() error = %v", err)
	}
	if total != 10 || embedded != 7 {
		t.Fatalf("counts = %d/%d, want 10/7", total, embedded)
	}
}

func TestChunkDeleteByDocument(t *testing.T) {
	repo, mock := newChunkMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM plan_chunks WHERE plan_id = $1")).
		WithArgs("plan-1").
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := repo.DeleteByDocument(context.Background(), "plan-1"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
}

func TestChunkSearchSimilar(t *testing.T) {
	repo, mock := newChunkMock(t)

	query := testEmbedding(0.25)
	rows := sqlmock.NewRows([]string{"id", "plan_id", "page_number", "snippet_text", "metadata", "similarity"}).
		AddRow("c1", "plan-1", 3, "panel schedule", []byte(`{"content_type":"extracted_text","chunk_index":0}`), 0.91).
		AddRow("c2", "plan-1", nil, "cover sheet notes", []byte(`{}`), 0.84)

	mock.ExpectQuery(regexp.QuoteMeta("FROM match_plan_chunks($1::vector, $2, $3)")).
		WithArgs(vectorLiteral(query), "plan-1", 6).
		WillReturnRows(rows)

	chunks, err := repo.SearchSimilar(context.Background(), "plan-1", query, 6)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("results = %d, want 2", len(chunks))
	}
	if chunks[0].Similarity != 0.91 {
		t.Fatalf("similarity = %v, want 0.91", chunks[0].Similarity)
	}
	if chunks[0].PageNumber == nil || *chunks[0].PageNumber != 3 {
		t.Fatalf("page = %v, want 3", chunks[0].PageNumber)
	}
	if chunks[1].PageNumber != nil {
		t.Fatalf("null page must stay nil, got %v", *chunks[1].PageNumber)
	}
}

func TestChunkSearchSimilarRejectsWrongDimension(t *testing.T) {
	repo, _ := newChunkMock(t)

	_, err := repo.SearchSimilar(context.Background(), "plan-1", []float32{0.1}, 5)
	if !errors.Is(err, domain.ErrEmbeddingDimension) {
		t.Fatalf("error = %v, want ErrEmbeddingDimension", err)
	}
}

func TestChunkGetByPages(t *testing.T) {
	repo, mock := newChunkMock(t)

	rows := sqlmock.NewRows([]string{"id", "plan_id", "page_number", "snippet_text", "metadata"}).
		AddRow("c1", "plan-1", 2, "foundation notes", []byte(`{}`))

	mock.ExpectQuery(regexp.QuoteMeta("page_number IN ($2,$3)")).
		WithArgs("plan-1", 2, 5, 50).
		WillReturnRows(rows)

	chunks, err := repo.GetByPages(context.Background(), "plan-1", []int{2, 5}, 50)
	if err != nil {
		t.Fatalf("GetByPages() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Fatalf("unexpected results: %+v", chunks)
	}
}

func TestChunkGetByPagesEmptyInput(t *testing.T) {
	repo, mock := newChunkMock(t)

	chunks, err := repo.GetByPages(context.Background(), "plan-1", nil, 50)
	if err != nil || chunks != nil {
		t.Fatalf("GetByPages(nil) = %v, %v; want nil, nil", chunks, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statements expected: %v", err)
	}
}
