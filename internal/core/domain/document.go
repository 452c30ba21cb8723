package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mime_type"`
	StoragePath      string         `json:"storage_path"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	PageCount        int            `json:"page_count"`
	ChunkCount       int            `json:"chunk_count"`
	Warnings         []string       `json:"warnings,omitempty"`
	Status           DocumentStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IngestStats summarizes one completed indexing run for a document.
type IngestStats struct {
	ExtractionMethod string   `json:"extraction_method"`
	PageCount        int      `json:"page_count"`
	ChunkCount       int      `json:"chunk_count"`
	Warnings         []string `json:"warnings"`
}
