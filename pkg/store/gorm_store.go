package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"docchat/pkg/domain"
)

const migrateLockID int64 = 84318431

const (
	defaultEmbeddingDim      = 1536
	canonicalEmbeddingDimEnv = "DOCCHAT_EMBEDDING_DIM"
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the embedding dimension the chunk table uses.
// It must match the embedding model's output width.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs migrations under an advisory lock
// so concurrent replicas do not race each other.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&ProjectModel{}, &DocumentModel{}, &ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_models'
					AND constraint_name = 'document_models_project_id_fkey'
				) THEN
					ALTER TABLE document_models
					ADD CONSTRAINT document_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunk_models'
					AND constraint_name = 'chunk_models_project_id_fkey'
				) THEN
					ALTER TABLE chunk_models
					ADD CONSTRAINT chunk_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunk_models'
					AND constraint_name = 'chunk_models_document_id_fkey'
				) THEN
					ALTER TABLE chunk_models
					ADD CONSTRAINT chunk_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure project foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateProject writes the project, documents, chunks and vectors in
// one transaction.
func (s *GormStore) CreateProject(p domain.Project, docs []domain.Document, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
	}
	for _, embedding := range embeddings {
		if err := s.validateEmbeddingDim(embedding); err != nil {
			return err
		}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		project := projectToModel(p)
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		if len(docs) > 0 {
			docModels := make([]DocumentModel, 0, len(docs))
			for _, doc := range docs {
				docModels = append(docModels, documentToModel(doc))
			}
			if err := tx.CreateInBatches(&docModels, 50).Error; err != nil {
				return err
			}
		}
		if len(chunks) > 0 {
			chunkModels := make([]ChunkModel, 0, len(chunks))
			for i, chunk := range chunks {
				model := chunkToModel(chunk)
				vec := pgvector.NewVector(embeddings[i])
				model.Embedding = &vec
				chunkModels = append(chunkModels, model)
			}
			if err := tx.CreateInBatches(&chunkModels, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProject retrieves a project scoped by its owner.
func (s *GormStore) GetProject(ownerHash, projectID string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ? AND owner_hash = ?", projectID, ownerHash).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjects returns the owner's projects ordered by created_at.
func (s *GormStore) ListProjects(ownerHash string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("owner_hash = ?", ownerHash).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// ListDocuments returns a project's documents ordered by created_at.
func (s *GormStore) ListDocuments(projectID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("project_id = ?", projectID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

type scoredChunkRow struct {
	ChunkModel `gorm:"embedded"`
	Similarity float64
}

// SearchChunks finds the nearest chunks by cosine distance and reports
// similarity as 1 - distance.
func (s *GormStore) SearchChunks(projectID string, embedding []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var rows []scoredChunkRow
	if err := s.db.Model(&ChunkModel{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", vec).
		Where("project_id = ? AND embedding IS NOT NULL", projectID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, domain.ScoredChunk{
			Chunk:      chunkFromModel(row.ChunkModel),
			Similarity: row.Similarity,
		})
	}
	return chunks, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:          p.ID,
		OwnerHash:   p.OwnerHash,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:          m.ID,
		OwnerHash:   m.OwnerHash,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:         d.ID,
		ProjectID:  d.ProjectID,
		Filename:   d.Filename,
		StorageKey: d.StorageKey,
		SizeBytes:  d.SizeBytes,
		PageCount:  d.PageCount,
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		Filename:   m.Filename,
		StorageKey: m.StorageKey,
		SizeBytes:  m.SizeBytes,
		PageCount:  m.PageCount,
		ChunkCount: m.ChunkCount,
		CreatedAt:  m.CreatedAt,
	}
}

type chunkMetadata struct {
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

func chunkToModel(c domain.Chunk) ChunkModel {
	meta, _ := json.Marshal(chunkMetadata{Source: c.Source, ChunkID: c.Seq})
	return ChunkModel{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		DocumentID: c.DocumentID,
		Seq:        c.Seq,
		Content:    c.Content,
		Metadata:   meta,
		CreatedAt:  c.CreatedAt,
	}
}

func chunkFromModel(m ChunkModel) domain.Chunk {
	var meta chunkMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.Chunk{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		DocumentID: m.DocumentID,
		Seq:        m.Seq,
		Content:    m.Content,
		Source:     meta.Source,
		CreatedAt:  m.CreatedAt,
	}
}
