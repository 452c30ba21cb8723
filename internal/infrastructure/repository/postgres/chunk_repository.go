package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// DefaultEmbeddingDim is the vector width for text-embedding-3-small,
// used when no dimension is configured.
const DefaultEmbeddingDim = 1536

const insertBatchSize = 100

type ChunkRepository struct {
	db  *sql.DB
	dim int
}

// NewChunkRepository builds a repository whose plan_chunks schema and
// dimension checks use the given vector width. The width is fixed at
// schema creation time, so it must match across restarts.
func NewChunkRepository(db *sql.DB, dimension int) *ChunkRepository {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDim
	}
	return &ChunkRepository{db: db, dim: dimension}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS plan_chunks (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	page_number INTEGER,
	snippet_text TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plan_chunks_plan_id ON plan_chunks(plan_id);
CREATE INDEX IF NOT EXISTS idx_plan_chunks_plan_page ON plan_chunks(plan_id, page_number);

CREATE OR REPLACE FUNCTION match_plan_chunks(
	query_embedding vector(%d),
	match_plan_id TEXT,
	match_count INTEGER
) RETURNS TABLE (
	id TEXT,
	plan_id TEXT,
	page_number INTEGER,
	snippet_text TEXT,
	metadata JSONB,
	similarity DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
	SELECT
		c.id,
		c.plan_id,
		c.page_number,
		c.snippet_text,
		c.metadata,
		1 - (c.embedding <=> query_embedding) AS similarity
	FROM plan_chunks c
	WHERE c.plan_id = match_plan_id
	  AND c.embedding IS NOT NULL
	ORDER BY c.embedding <=> query_embedding
	LIMIT match_count;
$$;
`, r.dim, r.dim)

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute chunk schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM plan_chunks WHERE plan_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete plan chunks: %w", err)
	}
	return nil
}

func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.TextChunk) error {
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.insertBatchOnce(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) insertBatchOnce(ctx context.Context, chunks []domain.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO plan_chunks (id, plan_id, page_number, snippet_text, metadata, embedding) VALUES `)

	args := make([]any, 0, len(chunks)*6)
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d::vector)", base+1, base+2, base+3, base+4, base+5, base+6)

		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		var embedding any
		if len(chunk.Embedding) > 0 {
			if len(chunk.Embedding) != r.dim {
				return domain.WrapError(domain.ErrEmbeddingDimension, "insert chunks",
					fmt.Errorf("chunk %s has %d dimensions, want %d", chunk.ID, len(chunk.Embedding), r.dim))
			}
			embedding = vectorLiteral(chunk.Embedding)
		}

		args = append(args, chunk.ID, chunk.DocumentID, chunk.PageNumber, chunk.SnippetText, metaJSON, embedding)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert plan chunks: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (total int, embedded int, err error) {
	row := r.db.QueryRowContext(ctx, `
SELECT count(*), count(embedding)
FROM plan_chunks
WHERE plan_id = $1
`, documentID)
	if err := row.Scan(&total, &embedded); err != nil {
		return 0, 0, fmt.Errorf("count plan chunks: %w", err)
	}
	return total, embedded, nil
}

func (r *ChunkRepository) SearchSimilar(ctx context.Context, documentID string, queryEmbedding []float32, limit int) ([]domain.TextChunk, error) {
	if len(queryEmbedding) != r.dim {
		return nil, domain.WrapError(domain.ErrEmbeddingDimension, "search chunks",
			fmt.Errorf("query has %d dimensions, want %d", len(queryEmbedding), r.dim))
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, plan_id, page_number, snippet_text, metadata, similarity
FROM match_plan_chunks($1::vector, $2, $3)
`, vectorLiteral(queryEmbedding), documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("match plan chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, true)
}

func (r *ChunkRepository) GetByPages(ctx context.Context, documentID string, pageNumbers []int, maxRows int) ([]domain.TextChunk, error) {
	if len(pageNumbers) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(pageNumbers))
	args := make([]any, 0, len(pageNumbers)+2)
	args = append(args, documentID)
	for i, page := range pageNumbers {
		placeholders[i] = "$" + strconv.Itoa(i+2)
		args = append(args, page)
	}
	args = append(args, maxRows)

	query := fmt.Sprintf(`
SELECT id, plan_id, page_number, snippet_text, metadata
FROM plan_chunks
WHERE plan_id = $1 AND page_number IN (%s)
ORDER BY page_number, (metadata->>'chunk_index')::int
LIMIT $%d
`, strings.Join(placeholders, ","), len(pageNumbers)+2)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks by pages: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, false)
}

func scanChunks(rows *sql.Rows, withSimilarity bool) ([]domain.TextChunk, error) {
	var chunks []domain.TextChunk
	for rows.Next() {
		var chunk domain.TextChunk
		var pageNumber sql.NullInt64
		var metaRaw []byte

		var err error
		if withSimilarity {
			err = rows.Scan(&chunk.ID, &chunk.DocumentID, &pageNumber, &chunk.SnippetText, &metaRaw, &chunk.Similarity)
		} else {
			err = rows.Scan(&chunk.ID, &chunk.DocumentID, &pageNumber, &chunk.SnippetText, &metaRaw)
		}
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		if pageNumber.Valid {
			n := int(pageNumber.Int64)
			chunk.PageNumber = &n
		}
		if err := json.Unmarshal(metaRaw, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// vectorLiteral renders a float32 slice in pgvector's input format,
// e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 10)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
