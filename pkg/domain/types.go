package domain

import "time"

type Project struct {
	ID          string    `json:"id"`
	OwnerHash   string    `json:"ownerHash"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Document struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"-"`
	SizeBytes  int64     `json:"sizeBytes"`
	PageCount  int       `json:"pageCount"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Chunk struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	DocumentID string    `json:"documentId"`
	Seq        int       `json:"seq"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// Wire shapes below use the public API field names shared by the rag
// service, the gateway and the client.

type CreatedProject struct {
	OwnerHash   string `json:"user_hash"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Message     string `json:"message"`
}

type ProjectInfo struct {
	ProjectID     string    `json:"project_id"`
	ProjectName   string    `json:"project_name"`
	Description   string    `json:"description"`
	DocumentCount int       `json:"document_count"`
	TotalChunks   int       `json:"total_chunks"`
	CreatedAt     time.Time `json:"created_at"`
	DocumentNames []string  `json:"document_names"`
}

type Answer struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	ProcessingSteps []string `json:"processing_steps"`
	Error           string   `json:"error,omitempty"`
}
