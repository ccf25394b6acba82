package store

import "docchat/pkg/domain"

// Store defines persistence for projects, their documents and the
// embedded chunks. A project with its documents, chunks and vectors is
// written atomically at creation time; nothing mutates it afterwards.
type Store interface {
	// CreateProject persists the project, its documents and its chunks
	// with their embedding vectors in one transaction. embeddings must
	// be parallel to chunks.
	CreateProject(p domain.Project, docs []domain.Document, chunks []domain.Chunk, embeddings [][]float32) error

	// GetProject returns the project only when both the owner hash and
	// the project id match.
	GetProject(ownerHash, projectID string) (domain.Project, bool, error)

	// ListProjects returns the owner's projects in creation order.
	ListProjects(ownerHash string) ([]domain.Project, error)

	// ListDocuments returns a project's documents in creation order.
	ListDocuments(projectID string) ([]domain.Document, error)

	// SearchChunks returns the chunks nearest to the query embedding by
	// cosine similarity, best first, with their similarity scores.
	SearchChunks(projectID string, embedding []float32, limit int) ([]domain.ScoredChunk, error)
}
