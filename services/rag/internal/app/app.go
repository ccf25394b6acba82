package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docchat/pkg/ai"
	"docchat/pkg/domain"
	"docchat/pkg/storage"
	"docchat/pkg/store"
)

const (
	defaultProjectName = "My Documents"
	embedBatchSize     = 128
	embedConcurrency   = 4
)

// EmbeddingClient bundles the single and batch embedding surfaces that
// retrieval and ingestion need.
type EmbeddingClient interface {
	ai.Embedder
	ai.BatchEmbedder
}

// Config wires dependencies for the RAG core.
type Config struct {
	StoreBackend string
	DatabaseURL  string
	EmbeddingDim int

	ObjectBackend  string
	DataDir        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	ModelBaseURL    string
	ModelAPIKey     string
	EmbeddingModel  string
	GenerationModel string
	MaxTokens       int

	TopK                int
	SimilarityThreshold float64
	ChunkSize           int
	ChunkOverlap        int
	MaxFiles            int
	MaxFileBytes        int64

	// Pre-built dependencies override the backend fields above when
	// set. Tests inject fakes here.
	Store     store.Store
	Objects   storage.ObjectStore
	Embedder  EmbeddingClient
	Generator ai.TextGenerator
}

// App implements project creation and question answering over the
// uploaded documents.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	embedder  EmbeddingClient
	generator ai.TextGenerator

	topK         int
	threshold    float64
	chunkSize    int
	chunkOverlap int
	maxFiles     int
	maxFileBytes int64
}

// New constructs the app, building any dependency not supplied in cfg.
func New(cfg Config) (*App, error) {
	a := &App{
		store:        cfg.Store,
		objects:      cfg.Objects,
		embedder:     cfg.Embedder,
		generator:    cfg.Generator,
		topK:         cfg.TopK,
		threshold:    cfg.SimilarityThreshold,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		maxFiles:     cfg.MaxFiles,
		maxFileBytes: cfg.MaxFileBytes,
	}
	if a.topK <= 0 {
		a.topK = 5
	}
	if a.threshold <= 0 {
		a.threshold = 0.1
	}
	if a.chunkSize <= 0 {
		a.chunkSize = 1000
	}
	if a.chunkOverlap <= 0 {
		a.chunkOverlap = 200
	}
	if a.chunkOverlap >= a.chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", a.chunkOverlap, a.chunkSize)
	}
	if a.maxFiles <= 0 {
		a.maxFiles = 3
	}
	if a.maxFileBytes <= 0 {
		a.maxFileBytes = 15 << 20
	}

	if a.store == nil {
		switch cfg.StoreBackend {
		case "", "postgres":
			s, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
			if err != nil {
				return nil, fmt.Errorf("init store: %w", err)
			}
			a.store = s
		case "memory":
			a.store = store.NewMemoryStore()
		default:
			return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
		}
	}
	if a.objects == nil {
		switch cfg.ObjectBackend {
		case "", "disk":
			d, err := storage.NewDiskStore(cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("init object store: %w", err)
			}
			a.objects = d
		case "minio":
			m, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
			if err != nil {
				return nil, fmt.Errorf("init object store: %w", err)
			}
			a.objects = m
		default:
			return nil, fmt.Errorf("unknown object backend %q", cfg.ObjectBackend)
		}
	}
	if a.embedder == nil || a.generator == nil {
		client := ai.NewOpenAIClient(ai.OpenAIOptions{
			BaseURL:    cfg.ModelBaseURL,
			APIKey:     cfg.ModelAPIKey,
			EmbedModel: cfg.EmbeddingModel,
			ChatModel:  cfg.GenerationModel,
			Dimensions: cfg.EmbeddingDim,
			MaxTokens:  cfg.MaxTokens,
		})
		if a.embedder == nil {
			a.embedder = client
		}
		if a.generator == nil {
			a.generator = client
		}
	}
	return a, nil
}

// Upload is one file received by the create endpoint, already read
// into memory.
type Upload struct {
	Filename string
	Size     int64
	Data     []byte
}

// CreateProject validates the uploads, extracts and chunks their text,
// embeds every chunk and persists the whole project. The PDF bytes are
// kept in object storage under a key derived from the new identifiers.
func (a *App) CreateProject(ctx context.Context, name, description string, uploads []Upload) (domain.CreatedProject, error) {
	if err := a.validateUploads(uploads); err != nil {
		return domain.CreatedProject{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultProjectName
	}
	ownerHash := newOwnerHash()
	projectID := uuid.NewString()
	now := time.Now().UTC()

	var (
		docs       []domain.Document
		chunks     []domain.Chunk
		texts      []string
		storedKeys []string
	)
	cleanup := func() {
		for _, key := range storedKeys {
			if err := a.objects.Delete(ctx, key); err != nil {
				slog.Warn("cleanup stored object", "key", key, "err", err)
			}
		}
	}

	for _, up := range uploads {
		text, pageCount, err := extractPDFText(up.Data)
		if err != nil {
			cleanup()
			return domain.CreatedProject{}, fmt.Errorf("%w: could not extract text from %s", ErrInvalidUpload, up.Filename)
		}
		docID := uuid.NewString()
		key := objectKey(ownerHash, projectID, docID, up.Filename)
		if err := a.objects.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), "application/pdf"); err != nil {
			cleanup()
			return domain.CreatedProject{}, fmt.Errorf("store %s: %w", up.Filename, err)
		}
		storedKeys = append(storedKeys, key)

		parts := splitText(normalizeText(text), a.chunkSize, a.chunkOverlap, nil)
		for seq, part := range parts {
			chunks = append(chunks, domain.Chunk{
				ID:         uuid.NewString(),
				ProjectID:  projectID,
				DocumentID: docID,
				Seq:        seq,
				Content:    part,
				Source:     up.Filename,
				CreatedAt:  now,
			})
			texts = append(texts, part)
		}
		docs = append(docs, domain.Document{
			ID:         docID,
			ProjectID:  projectID,
			Filename:   up.Filename,
			StorageKey: key,
			SizeBytes:  int64(len(up.Data)),
			PageCount:  pageCount,
			ChunkCount: len(parts),
			CreatedAt:  now,
		})
	}

	embeddings, err := a.embedChunks(ctx, texts)
	if err != nil {
		cleanup()
		return domain.CreatedProject{}, err
	}

	project := domain.Project{
		ID:          projectID,
		OwnerHash:   ownerHash,
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
	if err := a.store.CreateProject(project, docs, chunks, embeddings); err != nil {
		cleanup()
		return domain.CreatedProject{}, fmt.Errorf("create project: %w", err)
	}
	return domain.CreatedProject{
		OwnerHash:   ownerHash,
		ProjectID:   projectID,
		ProjectName: name,
		Message:     fmt.Sprintf("Successfully created project with %d documents and %d chunks", len(docs), len(chunks)),
	}, nil
}

func (a *App) validateUploads(uploads []Upload) error {
	if len(uploads) == 0 {
		return fmt.Errorf("%w: at least one file is required", ErrInvalidUpload)
	}
	if len(uploads) > a.maxFiles {
		return fmt.Errorf("%w: maximum %d files allowed", ErrInvalidUpload, a.maxFiles)
	}
	for _, up := range uploads {
		if !strings.HasSuffix(strings.ToLower(up.Filename), ".pdf") {
			return fmt.Errorf("%w: file %s is not a PDF", ErrInvalidUpload, up.Filename)
		}
		size := up.Size
		if size <= 0 {
			size = int64(len(up.Data))
		}
		if size > a.maxFileBytes {
			return fmt.Errorf("%w: file %s exceeds %dMB limit", ErrInvalidUpload, up.Filename, a.maxFileBytes>>20)
		}
		if len(up.Data) == 0 {
			return fmt.Errorf("%w: file %s is empty", ErrInvalidUpload, up.Filename)
		}
	}
	return nil
}

// embedChunks embeds the chunk texts in fixed-size batches, a few
// batches in flight at a time, and reassembles the vectors in chunk
// order.
func (a *App) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: documents contain no extractable text", ErrInvalidUpload)
	}
	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += embedBatchSize {
		start, end := start, min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := a.embedder.EmbedTexts(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Project loads one project scoped to its owner.
func (a *App) Project(ownerHash, projectID string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(ownerHash, projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, nil
}

// ProjectInfo returns the document summary for one project.
func (a *App) ProjectInfo(ownerHash, projectID string) (domain.ProjectInfo, error) {
	project, err := a.Project(ownerHash, projectID)
	if err != nil {
		return domain.ProjectInfo{}, err
	}
	return a.projectInfo(project)
}

// ListProjects returns summaries for every project under an owner.
func (a *App) ListProjects(ownerHash string) ([]domain.ProjectInfo, error) {
	projects, err := a.store.ListProjects(ownerHash)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	infos := make([]domain.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		info, err := a.projectInfo(p)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *App) projectInfo(p domain.Project) (domain.ProjectInfo, error) {
	docs, err := a.store.ListDocuments(p.ID)
	if err != nil {
		return domain.ProjectInfo{}, fmt.Errorf("list documents: %w", err)
	}
	names := make([]string, 0, len(docs))
	totalChunks := 0
	for _, d := range docs {
		names = append(names, d.Filename)
		totalChunks += d.ChunkCount
	}
	return domain.ProjectInfo{
		ProjectID:     p.ID,
		ProjectName:   p.Name,
		Description:   p.Description,
		DocumentCount: len(docs),
		TotalChunks:   totalChunks,
		CreatedAt:     p.CreatedAt,
		DocumentNames: names,
	}, nil
}

// Chat answers one question against a project's documents.
func (a *App) Chat(ctx context.Context, ownerHash, projectID, query string) (domain.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Answer{}, ErrEmptyQuery
	}
	project, err := a.Project(ownerHash, projectID)
	if err != nil {
		return domain.Answer{}, err
	}
	return a.answerQuestion(ctx, project, query, nil), nil
}

// newOwnerHash derives the anonymous owner identifier for a new
// project: the truncated SHA-256 of a UUID plus extra randomness.
func newOwnerHash() string {
	entropy := make([]byte, 8)
	_, _ = rand.Read(entropy)
	sum := sha256.Sum256([]byte(uuid.NewString() + hex.EncodeToString(entropy)))
	return hex.EncodeToString(sum[:])[:16]
}

// objectKey builds the storage key for an uploaded file. The filename
// is reduced to a safe basename; the document id keeps keys unique.
func objectKey(ownerHash, projectID, docID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return fmt.Sprintf("%s/%s/%s_%s", ownerHash, projectID, docID, base)
}
