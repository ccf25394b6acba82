package store

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"docchat/pkg/domain"
)

// MemoryStore keeps projects in-process. It backs the "memory" store
// mode and the tests; similarity search is brute force over all chunks
// of a project.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]domain.Project    // key: project ID
	docs     map[string][]domain.Document // key: project ID
	chunks   map[string][]domain.Chunk    // key: project ID
	vectors  map[string][][]float32       // key: project ID, parallel to chunks
	order    []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]domain.Project),
		docs:     make(map[string][]domain.Document),
		chunks:   make(map[string][]domain.Chunk),
		vectors:  make(map[string][][]float32),
	}
}

// CreateProject stores the project with its documents, chunks and
// vectors, tracking insertion order.
func (m *MemoryStore) CreateProject(p domain.Project, docs []domain.Document, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	m.projects[p.ID] = p
	m.docs[p.ID] = append([]domain.Document(nil), docs...)
	m.chunks[p.ID] = append([]domain.Chunk(nil), chunks...)
	m.vectors[p.ID] = append([][]float32(nil), embeddings...)
	m.order = append(m.order, p.ID)
	return nil
}

// GetProject retrieves a project scoped by its owner.
func (m *MemoryStore) GetProject(ownerHash, projectID string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok || p.OwnerHash != ownerHash {
		return domain.Project{}, false, nil
	}
	return p, true, nil
}

// ListProjects returns the owner's projects in insertion order.
func (m *MemoryStore) ListProjects(ownerHash string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0, len(m.order))
	for _, id := range m.order {
		if p, ok := m.projects[id]; ok && p.OwnerHash == ownerHash {
			res = append(res, p)
		}
	}
	return res, nil
}

// ListDocuments returns a project's documents in insertion order.
func (m *MemoryStore) ListDocuments(projectID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Document(nil), m.docs[projectID]...), nil
}

// SearchChunks scores every chunk of the project by cosine similarity
// and returns the best matches first.
func (m *MemoryStore) SearchChunks(projectID string, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.chunks[projectID]
	vectors := m.vectors[projectID]
	scored := make([]domain.ScoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		scored = append(scored, domain.ScoredChunk{
			Chunk:      chunk,
			Similarity: cosineSimilarity(embedding, vectors[i]),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
