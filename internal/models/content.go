package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// IndexStatus tracks where a content item is in the indexing pipeline
type IndexStatus string

// Index statuses
const (
	IndexPending  IndexStatus = "pending"
	IndexIndexing IndexStatus = "indexing"
	IndexIndexed  IndexStatus = "indexed"
	IndexFailed   IndexStatus = "failed"
)

// ContentItem is a piece of study material uploaded by a teacher or admin
type ContentItem struct {
	ID          int            `json:"id" db:"id"`
	UploadedBy  int            `json:"uploaded_by" db:"uploaded_by"`
	Subject     string         `json:"subject" db:"subject"`
	Title       string         `json:"title" db:"title"`
	Folder      sql.NullString `json:"folder" db:"folder"`
	Body        string         `json:"body" db:"body"`
	IndexStatus IndexStatus    `json:"index_status" db:"index_status"`
	IndexError  sql.NullString `json:"index_error" db:"index_error"`
	ChunkCount  int            `json:"chunk_count" db:"chunk_count"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for ContentItem to handle sql.NullString properly
func (ci ContentItem) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int         `json:"id"`
		UploadedBy  int         `json:"uploaded_by"`
		Subject     string      `json:"subject"`
		Title       string      `json:"title"`
		Folder      *string     `json:"folder"`
		Body        string      `json:"body"`
		IndexStatus IndexStatus `json:"index_status"`
		IndexError  *string     `json:"index_error"`
		ChunkCount  int         `json:"chunk_count"`
		CreatedAt   time.Time   `json:"created_at"`
		UpdatedAt   time.Time   `json:"updated_at"`
	}{
		ID:          ci.ID,
		UploadedBy:  ci.UploadedBy,
		Subject:     ci.Subject,
		Title:       ci.Title,
		Folder:      nullStringToPointer(ci.Folder),
		Body:        ci.Body,
		IndexStatus: ci.IndexStatus,
		IndexError:  nullStringToPointer(ci.IndexError),
		ChunkCount:  ci.ChunkCount,
		CreatedAt:   ci.CreatedAt,
		UpdatedAt:   ci.UpdatedAt,
	})
}

// ContentChunk is one splitter-produced chunk of a content item.
// VectorID is the ID of the corresponding vector in the index.
type ContentChunk struct {
	ID        int       `json:"id" db:"id"`
	ContentID int       `json:"content_id" db:"content_id"`
	Ordinal   int       `json:"ordinal" db:"ordinal"`
	Text      string    `json:"text" db:"chunk_text"`
	VectorID  string    `json:"vector_id" db:"vector_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RAGSource attributes part of an answer to a content chunk
type RAGSource struct {
	ContentID int     `json:"content_id"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
}

// RAGAnswer is the response of a retrieval-augmented content query
type RAGAnswer struct {
	Answer  string      `json:"answer"`
	Sources []RAGSource `json:"sources"`
	// Degraded is set when the vector index was unreachable and the
	// fuzzy text fallback produced the sources
	Degraded bool `json:"degraded,omitempty"`
}

// UploadContentRequest uploads study material
type UploadContentRequest struct {
	Subject string `json:"subject" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Folder  string `json:"folder,omitempty"`
	Body    string `json:"body" binding:"required"`
}

// ContentQueryRequest asks a question over indexed content
type ContentQueryRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k,omitempty"`
}
