package domain

const (
	ContentTypeExtractedText     = "extracted_text"
	ContentTypeVisionDescription = "vision_description"
)

type ChunkMetadata struct {
	ContentType    string `json:"content_type"`
	SheetID        string `json:"sheet_id,omitempty"`
	SheetTitle     string `json:"sheet_title,omitempty"`
	Discipline     string `json:"discipline,omitempty"`
	ChunkIndex     int    `json:"chunk_index"`
	CharacterCount int    `json:"character_count"`
	TotalPages     int    `json:"total_pages,omitempty"`
}

// TextChunk is the persisted unit of retrieval. Embedding must have
// exactly the configured dimension for the chunk to be searchable.
type TextChunk struct {
	ID          string        `json:"id"`
	DocumentID  string        `json:"document_id"`
	PageNumber  *int          `json:"page_number,omitempty"`
	SnippetText string        `json:"snippet_text"`
	Metadata    ChunkMetadata `json:"metadata"`
	Embedding   []float32     `json:"-"`
	Similarity  float64       `json:"similarity,omitempty"`
}

// ChunkContext carries per-page provenance into the chunker.
type ChunkContext struct {
	DocumentID string
	PageNumber int
	PageIndex  int
	TotalPages int
	Sheet      *SheetRef
}
